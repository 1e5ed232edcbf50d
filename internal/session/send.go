package session

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// Send delivers one message to the given chat address. When mediaPath is
// non-empty the file is uploaded and sent as an image with body as the
// caption; otherwise a plain text message is sent.
//
// There is no retry here: a failed send is the caller's to classify and
// aggregate.
func (m *Manager) Send(ctx context.Context, chatAddr, body, mediaPath string) error {
	m.mu.Lock()
	client := m.client
	ready := m.state == StateReady
	m.mu.Unlock()

	if !ready || client == nil {
		return ErrNotReady
	}

	jid, err := types.ParseJID(chatAddr)
	if err != nil {
		return fmt.Errorf("invalid chat address %q: %w", chatAddr, err)
	}

	var msg *waE2E.Message
	if mediaPath != "" {
		msg, err = m.imageMessage(ctx, client, body, mediaPath)
		if err != nil {
			return err
		}
	} else {
		msg = &waE2E.Message{Conversation: proto.String(body)}
	}

	_, err = client.SendMessage(ctx, jid, msg)
	return err
}

func (m *Manager) imageMessage(ctx context.Context, client *whatsmeow.Client, caption, path string) (*waE2E.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}

	uploaded, err := client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return nil, fmt.Errorf("uploading attachment: %w", err)
	}

	mime := http.DetectContentType(data)
	return &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mime),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		},
	}, nil
}
