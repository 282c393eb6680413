package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/realtime"
	"github.com/AnshRaj112/campus-chat-backend/internal/repository/memory"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendStoresMessageAndAdvancesLastMessage(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)

	msg := e.send(t, conv, learnerA, "  hello class  ")

	assert.Equal(t, "hello class", msg.Text)
	assert.Equal(t, string(learnerA), msg.SenderID)
	assert.Empty(t, msg.Media)
	assert.Empty(t, msg.ReadBy)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "Asha", msg.Sender.Name)

	last := e.lastMessage(t, conv.ID)
	require.NotNil(t, last)
	assert.Equal(t, msg.ID, last.MessageID)
	assert.Equal(t, "hello class", last.Text)
	assert.Equal(t, msg.CreatedAt, last.CreatedAt)

	evt := e.events.events[len(e.events.events)-1]
	assert.Equal(t, realtime.EventTypeMessage, evt.evt.Type)
	assert.Equal(t, conv.ID.Hex(), evt.conversationID)
	assert.Equal(t, msg.ID.Hex(), evt.evt.MessageID)
}

func TestSendRejectsEmptyContent(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()

	for _, text := range []string{"", "   \n\t"} {
		_, err := e.msgs.Send(ctx, services.SendInput{ConversationID: convID(conv), SenderID: learnerA, Text: text})
		assert.ErrorIs(t, err, services.ErrInvalidContent)
	}

	_, err := e.msgs.Send(ctx, services.SendInput{
		ConversationID: convID(conv),
		SenderID:       learnerA,
		Files:          []services.FileUpload{{FileName: "empty.png", ContentType: "image/png"}},
	})
	assert.ErrorIs(t, err, services.ErrInvalidContent)

	assert.Zero(t, e.messages.Len())
	assert.Nil(t, e.lastMessage(t, conv.ID))
}

func TestSendRequiresMembership(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()

	_, err := e.msgs.Send(ctx, services.SendInput{ConversationID: convID(conv), SenderID: outsider, Text: "let me in"})
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = e.msgs.Send(ctx, services.SendInput{ConversationID: "65f0000000000000000000aa", SenderID: learnerA, Text: "hi"})
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = e.msgs.Send(ctx, services.SendInput{ConversationID: "undefined", SenderID: learnerA, Text: "hi"})
	assert.ErrorIs(t, err, services.ErrInvalidIdentity)

	assert.Zero(t, e.messages.Len())
	assert.Zero(t, e.uploader.calls.Load())
}

func TestSendFileOnlyMessageUsesFileCountPreview(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)

	msg := e.send(t, conv, learnerB, "", image("diagram.png"))

	require.Len(t, msg.Media, 1)
	assert.Equal(t, models.MediaImage, msg.Media[0].Kind)
	assert.Equal(t, "diagram.png", msg.Media[0].FileName)
	assert.Equal(t, "https://cdn.example.edu/chat/"+conv.ID.Hex()+"/diagram.png", msg.Media[0].URL)
	assert.Equal(t, "Sent 1 file(s)", e.lastMessage(t, conv.ID).Text)
	assert.Empty(t, msg.Text)
}

func TestSendKeepsAttachmentOrder(t *testing.T) {
	e := newEnv(t)
	// Earlier files finish last.
	e.uploader.delay = func(name string) time.Duration {
		switch name {
		case "1.png":
			return 30 * time.Millisecond
		case "2.pdf":
			return 15 * time.Millisecond
		}
		return 0
	}
	conv := e.group(t)

	msg := e.send(t, conv, learnerA, "notes",
		image("1.png"),
		services.FileUpload{FileName: "2.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		services.FileUpload{FileName: "3.mp4", ContentType: "video/mp4", Data: []byte("mp4")},
	)

	require.Len(t, msg.Media, 3)
	assert.Equal(t, "1.png", msg.Media[0].FileName)
	assert.Equal(t, "2.pdf", msg.Media[1].FileName)
	assert.Equal(t, "3.mp4", msg.Media[2].FileName)
	assert.Equal(t, models.MediaPDF, msg.Media[1].Kind)
	assert.Equal(t, models.MediaVideo, msg.Media[2].Kind)
	assert.Equal(t, "notes", e.lastMessage(t, conv.ID).Text)
}

func TestSendUploadFailurePersistsNothing(t *testing.T) {
	e := newEnv(t)
	e.uploader.failOn = "b.png"
	conv := e.group(t)
	before := len(e.settled())

	_, err := e.msgs.Send(context.Background(), services.SendInput{
		ConversationID: convID(conv),
		SenderID:       learnerA,
		Text:           "two pictures",
		Files:          []services.FileUpload{image("a.png"), image("b.png")},
	})

	assert.ErrorIs(t, err, services.ErrUploadFailed)
	assert.Zero(t, e.messages.Len())
	assert.Nil(t, e.lastMessage(t, conv.ID))
	assert.NotContains(t, e.events.types(), realtime.EventTypeMessage)
	assert.Len(t, e.settled(), before)
}

func TestSendUploadTimeoutPersistsNothing(t *testing.T) {
	e := newEnv(t, withUploadTimeout(50*time.Millisecond))
	e.uploader.delay = func(name string) time.Duration {
		if name == "slow.png" {
			return 500 * time.Millisecond
		}
		return 0
	}
	conv := e.group(t)
	before := len(e.settled())

	_, err := e.msgs.Send(context.Background(), services.SendInput{
		ConversationID: convID(conv),
		SenderID:       learnerA,
		Text:           "one fast, one slow",
		Files:          []services.FileUpload{image("fast.png"), image("slow.png")},
	})

	assert.ErrorIs(t, err, services.ErrUploadFailed)
	assert.EqualValues(t, 2, e.uploader.calls.Load())
	assert.Zero(t, e.messages.Len())
	assert.Nil(t, e.lastMessage(t, conv.ID))
	assert.NotContains(t, e.events.types(), realtime.EventTypeMessage)
	assert.Len(t, e.settled(), before)
}

func TestSendWithoutUploaderFailsUpload(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	msgs := services.NewMessageService(services.MessageDeps{
		Conversations: e.conversations,
		Messages:      e.messages,
	})

	_, err := msgs.Send(context.Background(), services.SendInput{
		ConversationID: convID(conv), SenderID: learnerA, Files: []services.FileUpload{image("a.png")},
	})
	assert.ErrorIs(t, err, services.ErrUploadFailed)
	assert.Zero(t, e.messages.Len())
}

func TestSendNotifiesOfflineParticipants(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	e.subs.live[conv.ID.Hex()+"/"+string(learnerB)] = true
	before := len(e.settled())

	msg := e.send(t, conv, learnerA, "quiz tomorrow")

	created := e.settled()[before:]
	require.Len(t, created, 1)
	assert.Equal(t, string(mentorM), created[0].UserID)
	assert.Equal(t, models.NotificationNewMessage, created[0].Type)
	assert.Equal(t, conv.ID.Hex(), created[0].RelatedConversationID)
	assert.Equal(t, msg.ID.Hex(), created[0].RelatedMessageID)
}

func TestSendMentionsNotifyEvenWhenWatching(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	e.subs.live[conv.ID.Hex()+"/"+string(learnerB)] = true
	before := len(e.settled())

	e.send(t, conv, mentorM, fmt.Sprintf("@%s please share your answer", learnerB))

	created := e.settled()[before:]
	byUser := map[string]models.NotificationType{}
	for _, n := range created {
		byUser[n.UserID] = n.Type
	}
	assert.Equal(t, map[string]models.NotificationType{
		string(learnerB): models.NotificationMention,
		string(learnerA): models.NotificationNewMessage,
	}, byUser)
}

func TestSendSurvivesNotificationFailures(t *testing.T) {
	e := newEnv(t, withNotificationStore(failingNotificationStore{}))
	e.subs.err = errors.New("redis is down")
	conv := e.group(t)

	msg := e.send(t, conv, learnerA, "anyone?")
	assert.Equal(t, 1, e.messages.Len())
	assert.Equal(t, msg.ID, e.lastMessage(t, conv.ID).MessageID)
	e.notifier.Wait()
	assert.Empty(t, e.sink.sent)
}

func TestSendDoesNotWaitForNotifications(t *testing.T) {
	gate := &gatedNotificationStore{NotificationStore: memory.NewNotificationStore(), release: make(chan struct{})}
	e := newEnv(t, withNotificationStore(gate))
	conv := e.group(t)

	done := make(chan *models.Message, 1)
	go func() {
		msg, err := e.msgs.Send(context.Background(), services.SendInput{
			ConversationID: convID(conv), SenderID: learnerA, Text: "ping",
		})
		assert.NoError(t, err)
		done <- msg
	}()

	var msg *models.Message
	select {
	case msg = <-done:
	case <-time.After(2 * time.Second):
		close(gate.release)
		t.Fatal("send blocked on the notification store")
	}
	require.NotNil(t, msg)
	assert.Empty(t, gate.All())

	close(gate.release)
	e.notifier.Wait()

	var types []models.NotificationType
	for _, n := range gate.All() {
		if n.RelatedMessageID == msg.ID.Hex() {
			types = append(types, n.Type)
		}
	}
	assert.Equal(t, []models.NotificationType{models.NotificationNewMessage, models.NotificationNewMessage}, types)
	// group_created for the two learners, then one batch for the message.
	assert.Equal(t, 2, e.sink.batches)
	assert.Len(t, e.sink.sent, 4)
}

func TestSendSurvivesBroadcastFailure(t *testing.T) {
	e := newEnv(t)
	e.events.err = errors.New("pubsub unavailable")
	conv := e.group(t)

	e.send(t, conv, learnerA, "still stored")
	assert.Equal(t, 1, e.messages.Len())
}

func TestConcurrentSendsKeepNewestAsLastMessage(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.msgs.Send(ctx, services.SendInput{
				ConversationID: convID(conv), SenderID: learnerA, Text: fmt.Sprintf("msg %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := e.msgs.History(ctx, convID(conv), learnerA)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	assert.Equal(t, msgs[len(msgs)-1].ID, e.lastMessage(t, conv.ID).MessageID)
}

func TestHistoryIsOldestFirst(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()

	a := e.send(t, conv, learnerA, "one")
	b := e.send(t, conv, mentorM, "two")
	c := e.send(t, conv, learnerB, "three")

	msgs, err := e.msgs.History(ctx, convID(conv), learnerB)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, a.ID, msgs[0].ID)
	assert.Equal(t, b.ID, msgs[1].ID)
	assert.Equal(t, c.ID, msgs[2].ID)
	require.NotNil(t, msgs[1].Sender)
	assert.Equal(t, models.RoleMentor, msgs[1].Sender.Role)
	// learnerB has no directory entry.
	assert.Nil(t, msgs[2].Sender)

	_, err = e.msgs.History(ctx, convID(conv), outsider)
	assert.ErrorIs(t, err, services.ErrForbidden)

	empty := e.group(t)
	msgs, err = e.msgs.History(ctx, convID(empty), learnerA)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestHistoryPagePagesBackwards(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()

	var sent []*models.Message
	for i := 0; i < 5; i++ {
		sent = append(sent, e.send(t, conv, learnerA, fmt.Sprintf("m%d", i)))
	}

	page, err := e.msgs.HistoryPage(ctx, convID(conv), learnerA, "", 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, sent[3].ID, page.Messages[0].ID)
	assert.Equal(t, sent[4].ID, page.Messages[1].ID)

	page, err = e.msgs.HistoryPage(ctx, convID(conv), learnerA, msgID(&page.Messages[0]), 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, sent[1].ID, page.Messages[0].ID)

	page, err = e.msgs.HistoryPage(ctx, convID(conv), learnerA, msgID(&page.Messages[0]), 2)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, sent[0].ID, page.Messages[0].ID)

	other := e.group(t)
	foreign := e.send(t, other, learnerA, "elsewhere")
	_, err = e.msgs.HistoryPage(ctx, convID(conv), learnerA, msgID(foreign), 2)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDeleteOnlyBySender(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()
	msg := e.send(t, conv, learnerA, "mine")

	err := e.msgs.Delete(ctx, msgID(msg), mentorM)
	assert.ErrorIs(t, err, services.ErrForbidden)
	assert.Equal(t, 1, e.messages.Len())

	err = e.msgs.Delete(ctx, "65f0000000000000000000bb", learnerA)
	assert.ErrorIs(t, err, services.ErrNotFound)

	require.NoError(t, e.msgs.Delete(ctx, msgID(msg), learnerA))
	assert.Zero(t, e.messages.Len())
	assert.Contains(t, e.events.types(), realtime.EventTypeMessageDeleted)

	err = e.msgs.Delete(ctx, msgID(msg), learnerA)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDeleteRequiresCurrentMembership(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()
	msg := e.send(t, conv, learnerA, "before I left")

	_, err := e.convs.RemoveMembers(ctx, convID(conv), mentorM, []identity.ID{learnerA})
	require.NoError(t, err)

	err = e.msgs.Delete(ctx, msgID(msg), learnerA)
	assert.ErrorIs(t, err, services.ErrForbidden)
	assert.Equal(t, 1, e.messages.Len())
	assert.Equal(t, msg.ID, e.lastMessage(t, conv.ID).MessageID)
	assert.NotContains(t, e.events.types(), realtime.EventTypeMessageDeleted)
}

func TestDeleteRecomputesLastMessage(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()

	first := e.send(t, conv, learnerA, "first")
	second := e.send(t, conv, learnerB, "", image("photo.png"))
	third := e.send(t, conv, learnerA, "third")

	require.NoError(t, e.msgs.Delete(ctx, msgID(third), learnerA))
	last := e.lastMessage(t, conv.ID)
	require.NotNil(t, last)
	assert.Equal(t, second.ID, last.MessageID)
	assert.Equal(t, "Sent 1 file(s)", last.Text)

	// Deleting an older message leaves the snapshot alone.
	require.NoError(t, e.msgs.Delete(ctx, msgID(first), learnerA))
	assert.Equal(t, second.ID, e.lastMessage(t, conv.ID).MessageID)

	require.NoError(t, e.msgs.Delete(ctx, msgID(second), learnerB))
	assert.Nil(t, e.lastMessage(t, conv.ID))

	list, err := e.convs.List(ctx, learnerA, models.KindGroup)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].LastMessage)
	assert.Zero(t, list[0].MessageCount)
}

func TestGetForMember(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()
	msg := e.send(t, conv, learnerA, "visible to members")

	got, err := e.msgs.GetForMember(ctx, msgID(msg), mentorM)
	require.NoError(t, err)
	assert.Equal(t, msg.Text, got.Text)

	_, err = e.msgs.GetForMember(ctx, msgID(msg), outsider)
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	e := newEnv(t)
	conv := e.group(t)
	ctx := context.Background()
	msg := e.send(t, conv, learnerA, "read me")

	got, err := e.msgs.MarkRead(ctx, msgID(msg), learnerB)
	require.NoError(t, err)
	require.Len(t, got.ReadBy, 1)
	assert.Equal(t, string(learnerB), got.ReadBy[0].UserID)

	got, err = e.msgs.MarkRead(ctx, msgID(msg), learnerB)
	require.NoError(t, err)
	assert.Len(t, got.ReadBy, 1)

	readEvents := 0
	for _, typ := range e.events.types() {
		if typ == realtime.EventTypeMessageRead {
			readEvents++
		}
	}
	assert.Equal(t, 1, readEvents)

	_, err = e.msgs.MarkRead(ctx, msgID(msg), outsider)
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestPreviewText(t *testing.T) {
	assert.Equal(t, "hi", services.PreviewText("hi", 2))
	assert.Equal(t, "Sent 3 file(s)", services.PreviewText("", 3))
}
