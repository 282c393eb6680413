package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("/chat/abc/", "../../etc/my notes.pdf")
	assert.True(t, strings.HasPrefix(key, "chat/abc/"), key)
	assert.True(t, strings.HasSuffix(key, "-my_notes.pdf"), key)
	assert.NotContains(t, key, "..")

	assert.True(t, strings.HasSuffix(ObjectKey("x", ""), "-file"))
}

func TestPublicURL(t *testing.T) {
	aws := &S3Store{bucket: "media", region: "eu-west-1"}
	assert.Equal(t, "https://media.s3.eu-west-1.amazonaws.com/chat/a%20b.png", aws.PublicURL("chat/a b.png"))

	minio := &S3Store{bucket: "media", endpoint: "http://localhost:9000"}
	assert.Equal(t, "http://localhost:9000/media/chat/a.png", minio.PublicURL("chat/a.png"))
}
