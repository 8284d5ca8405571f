package whatsapp

import (
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

func TestParseJID(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"5511999999999@s.whatsapp.net", "5511999999999@s.whatsapp.net", false},
		{"120363000000000000@g.us", "120363000000000000@g.us", false},
		{"+55 (11) 99999-9999", "5511999999999@s.whatsapp.net", false},
		{"12345", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseJID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseJID(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("parseJID(%q) = %q, want %q", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestBuildTextMessage(t *testing.T) {
	plain := buildTextMessage("oi", 0)
	if plain.GetConversation() != "oi" || plain.GetExtendedTextMessage() != nil {
		t.Errorf("plain message = %v", plain)
	}

	ephemeral := buildTextMessage("oi", 604800)
	ext := ephemeral.GetExtendedTextMessage()
	if ext == nil || ext.GetText() != "oi" {
		t.Fatalf("ephemeral message = %v", ephemeral)
	}
	if got := ext.GetContextInfo().GetExpiration(); got != 604800 {
		t.Errorf("expiration = %d, want 604800", got)
	}
}

func TestExtractText(t *testing.T) {
	mention := types.NewJID("5511000000000", types.DefaultUserServer).String()

	tests := []struct {
		name       string
		msg        *waE2E.Message
		want       string
		expiration uint32
		mentions   int
	}{
		{"nil", nil, "", 0, 0},
		{"conversation", &waE2E.Message{Conversation: proto.String("tarefas")}, "tarefas", 0, 0},
		{
			"extended with context",
			&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String("@5511000000000 agenda"),
				ContextInfo: &waE2E.ContextInfo{
					Expiration:   proto.Uint32(86400),
					MentionedJID: []string{mention},
				},
			}},
			"@5511000000000 agenda", 86400, 1,
		},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ctxInfo := extractText(tt.msg)
			if text != tt.want {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
			if got := ctxInfo.GetExpiration(); got != tt.expiration {
				t.Errorf("expiration = %d, want %d", got, tt.expiration)
			}
			if got := len(ctxInfo.GetMentionedJID()); got != tt.mentions {
				t.Errorf("mentions = %d, want %d", got, tt.mentions)
			}
		})
	}
}

func TestNewestVersion(t *testing.T) {
	tests := []struct {
		a, b, want [3]uint32
	}{
		{[3]uint32{2, 3000, 10}, [3]uint32{2, 3000, 9}, [3]uint32{2, 3000, 10}},
		{[3]uint32{2, 2999, 99}, [3]uint32{2, 3000, 1}, [3]uint32{2, 3000, 1}},
		{[3]uint32{}, [3]uint32{2, 3000, 1}, [3]uint32{2, 3000, 1}},
		{[3]uint32{2, 3000, 1}, [3]uint32{2, 3000, 1}, [3]uint32{2, 3000, 1}},
	}
	for _, tt := range tests {
		if got := NewestVersion(tt.a, tt.b); got != tt.want {
			t.Errorf("NewestVersion(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
