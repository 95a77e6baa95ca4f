package core

import (
	"errors"
	"testing"
)

func TestMessageKindString(t *testing.T) {
	tests := []struct {
		kind MessageKind
		want string
	}{
		{KindLogin, "login"},
		{KindCredentials, "credentials"},
		{KindLogout, "logout"},
		{KindLoginAck, "login_ack"},
		{KindCredentialsAck, "credentials_ack"},
		{KindLogoutAck, "logout_ack"},
		{MessageKind(0), "invalid"},
		{MessageKind(42), "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMessageKindRouting(t *testing.T) {
	for _, k := range []MessageKind{KindLogin, KindCredentials, KindLogout} {
		if !k.IsRequest() || k.IsReply() {
			t.Errorf("Expected %s to be a request kind", k)
		}
	}
	for _, k := range []MessageKind{KindLoginAck, KindCredentialsAck, KindLogoutAck} {
		if k.IsRequest() || !k.IsReply() {
			t.Errorf("Expected %s to be a reply kind", k)
		}
	}
	if MessageKind(0).IsRequest() || MessageKind(0).IsReply() {
		t.Error("Zero kind should be neither request nor reply")
	}
}

func TestMessageKindAck(t *testing.T) {
	pairs := map[MessageKind]MessageKind{
		KindLogin:       KindLoginAck,
		KindCredentials: KindCredentialsAck,
		KindLogout:      KindLogoutAck,
	}
	for req, want := range pairs {
		got, err := req.Ack()
		if err != nil {
			t.Fatalf("Ack(%s) failed: %v", req, err)
		}
		if got != want {
			t.Errorf("Expected ack %s for %s, got %s", want, req, got)
		}
	}

	if _, err := KindLoginAck.Ack(); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind for reply kind, got %v", err)
	}
}

func TestMessageClone(t *testing.T) {
	orig := Message{
		SenderID: 4,
		Kind:     KindCredentials,
		Params:   []Param{{Key: "user", Value: "bob"}},
	}

	c := orig.Clone()
	orig.Params[0].Value = "mallory"

	if v, _ := c.Param("user"); v != "bob" {
		t.Errorf("Clone shares params with original: got %q", v)
	}
	if (Message{SenderID: 1}).Clone().Params != nil {
		t.Error("Clone of message without params should keep nil params")
	}
}

func TestMessageEmpty(t *testing.T) {
	if !emptyMessage().Empty() {
		t.Error("emptyMessage should be empty")
	}
	if (Message{SenderID: 1, Kind: KindLoginAck}).Empty() {
		t.Error("Message with real sender should not be empty")
	}
}

func TestRegistry(t *testing.T) {
	mb := NewMailbox()
	registry := NewRegistry()

	id1 := registry.NextID()
	id2 := registry.NextID()
	if id1 != 1 || id2 != 2 {
		t.Fatalf("Expected ids 1 and 2, got %d and %d", id1, id2)
	}

	// Register out of order to check List sorting
	if err := registry.Register(NewRequester(id2, "User2", mb)); err != nil {
		t.Fatalf("Failed to register requester %d: %v", id2, err)
	}
	if err := registry.Register(NewRequester(id1, "User1", mb)); err != nil {
		t.Fatalf("Failed to register requester %d: %v", id1, err)
	}

	list := registry.List()
	if len(list) != 2 || list[0].ID() != 1 || list[1].ID() != 2 {
		t.Fatalf("Expected requesters [1 2], got %v", list)
	}
	if list[0].Name() != "User1" {
		t.Errorf("Expected name 'User1', got '%s'", list[0].Name())
	}

	if err := registry.Register(NewRequester(id1, "dup", mb)); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Expected ErrDuplicateID, got %v", err)
	}
	if err := registry.Register(NewRequester(SentinelID, "sentinel", mb)); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Expected ErrInvalidID for sentinel id, got %v", err)
	}
	if err := registry.Register(NewRequester(0, "zero", mb)); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Expected ErrInvalidID for zero id, got %v", err)
	}
	if err := registry.Register(nil); err == nil {
		t.Error("Expected error registering nil requester")
	}

	if registry.Len() != 2 {
		t.Errorf("Expected 2 requesters, got %d", registry.Len())
	}
}

func TestRegistryNextIDSkipsTaken(t *testing.T) {
	mb := NewMailbox()
	registry := NewRegistry()

	if err := registry.Register(NewRequester(1, "manual", mb)); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if id := registry.NextID(); id != 2 {
		t.Errorf("Expected NextID to skip taken id 1, got %d", id)
	}
}
