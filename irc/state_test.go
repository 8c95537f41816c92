package irc

import (
	"testing"
	"time"
)

func TestStateBidirectionalMembership(t *testing.T) {
	s := NewState()
	s.SetMe("me")
	s.AddChannelMember("#chan", "me")
	s.AddChannelMember("#chan", "alice", 'o')

	c, ok := s.FindChannel("#chan")
	if !ok {
		t.Fatalf("expected #chan to exist")
	}
	if _, ok := c.Members[s.fold("alice")]; !ok {
		t.Errorf("expected alice in #chan members")
	}

	alice, ok := s.FindUser("alice")
	if !ok {
		t.Fatalf("expected alice to exist as a user")
	}
	if len(alice.Channels) != 1 || alice.Channels[0] != s.fold("#chan") {
		t.Errorf("expected alice.Channels = [#chan], got %v", alice.Channels)
	}

	s.DeleteChannelMember("#chan", "alice")
	if _, ok := c.Members[s.fold("alice")]; ok {
		t.Errorf("alice should no longer be a member of #chan")
	}
	if len(alice.Channels) != 0 {
		t.Errorf("alice.Channels should be empty after leaving, got %v", alice.Channels)
	}
}

func TestStateDeleteChannelMemberRemovesEmptyChannel(t *testing.T) {
	s := NewState()
	s.AddChannelMember("#chan", "alice")
	s.DeleteChannelMember("#chan", "alice")
	if _, ok := s.FindChannel("#chan"); ok {
		t.Errorf("expected #chan to be deleted once it has zero members")
	}
}

func TestStateQuitSkipsLocalUser(t *testing.T) {
	s := NewState()
	s.SetMe("me")
	s.AddChannelMember("#chan", "me")

	s.Quit("me")

	if s.Me() == nil {
		t.Errorf("Quit on the local user should be a no-op")
	}
	if _, ok := s.FindChannel("#chan"); !ok {
		t.Errorf("#chan should still exist: local user quit is ignored")
	}
}

func TestStateQuitRemovesFromAllChannels(t *testing.T) {
	s := NewState()
	s.AddChannelMember("#a", "alice")
	s.AddChannelMember("#b", "alice")
	s.AddChannelMember("#b", "bob")

	s.Quit("alice")

	if _, ok := s.FindChannel("#a"); ok {
		t.Errorf("#a should be deleted: alice was its only member")
	}
	b, ok := s.FindChannel("#b")
	if !ok {
		t.Fatalf("#b should still exist: bob remains")
	}
	if _, ok := b.Members[s.fold("alice")]; ok {
		t.Errorf("alice should be gone from #b's members")
	}
	if _, ok := s.FindUser("alice"); ok {
		t.Errorf("alice should be gone from the user table")
	}
}

func TestStateChangeNicknameReindexesAndUpdatesMe(t *testing.T) {
	s := NewState()
	s.SetMe("old")
	s.AddChannelMember("#chan", "old")

	s.ChangeNickname("old", "new")

	if s.Me() == nil || s.Me().Nick != "new" {
		t.Fatalf("expected Me().Nick = new, got %+v", s.Me())
	}
	if _, ok := s.FindUser("old"); ok {
		t.Errorf("old nickname should no longer resolve")
	}
	u, ok := s.FindUser("new")
	if !ok {
		t.Fatalf("new nickname should resolve to the renamed user")
	}
	c, _ := s.FindChannel("#chan")
	if _, ok := c.Members[s.fold("new")]; !ok {
		t.Errorf("membership map should be re-keyed under the new nickname")
	}
	if _, ok := c.Members[s.fold("old")]; ok {
		t.Errorf("old membership key should be gone")
	}
	if len(u.Channels) != 1 {
		t.Errorf("renamed user should retain channel membership list")
	}
}

func TestStateChangeNicknameSameCasefoldIsNoReindex(t *testing.T) {
	s := NewState()
	s.AddChannelMember("#chan", "Alice")
	s.ChangeNickname("Alice", "alice")

	u, ok := s.FindUser("ALICE")
	if !ok {
		t.Fatalf("expected lookup by any casing to resolve")
	}
	if u.Nick != "alice" {
		t.Errorf("display nickname should update to the new casing, got %q", u.Nick)
	}
}

func TestStateCasemappingWriteOnce(t *testing.T) {
	s := NewState()
	s.ApplyISupport([]string{"CASEMAPPING=ascii"})
	if s.Casemap != CasemapASCIIValue {
		t.Fatalf("expected first CASEMAPPING to apply, got %v", s.Casemap)
	}

	s.ApplyISupport([]string{"CASEMAPPING=rfc7613"})
	if s.Casemap != CasemapASCIIValue {
		t.Errorf("expected CASEMAPPING to remain ascii once set, got %v", s.Casemap)
	}
}

func TestStateGCRemovesIdleNonMembers(t *testing.T) {
	s := NewState()
	s.SetMe("me")
	s.Touch("idle")
	s.AddChannelMember("#chan", "member")

	cutoff := time.Now().Add(time.Minute)
	s.GC(cutoff)

	if _, ok := s.FindUser("idle"); ok {
		t.Errorf("idle, channel-less user should be GC'd")
	}
	if _, ok := s.FindUser("member"); !ok {
		t.Errorf("channel member should survive GC regardless of last touch")
	}
	if s.Me() == nil {
		t.Errorf("local user should survive GC regardless of last touch")
	}
}

func TestStateGCRespectsCutoff(t *testing.T) {
	s := NewState()
	s.Touch("recent")

	s.GC(time.Now().Add(-time.Hour))

	if _, ok := s.FindUser("recent"); !ok {
		t.Errorf("recently touched user should survive a cutoff in the past")
	}
}

func TestStateFocusChannelIsOrderedAndIdempotent(t *testing.T) {
	s := NewState()
	s.SetMe("me")
	s.AddChannelMember("#a", "me")
	s.AddChannelMember("#b", "me")

	focused, ok := s.FocusedChannel()
	if !ok || focused != "#b" {
		t.Fatalf("expected most recently joined channel to be focused, got %q, %v", focused, ok)
	}

	if !s.FocusChannel("#a") {
		t.Fatalf("expected FocusChannel(#a) to succeed")
	}
	focused, ok = s.FocusedChannel()
	if !ok || focused != "#a" {
		t.Errorf("expected #a to be focused after FocusChannel, got %q", focused)
	}

	if !s.FocusChannel("#a") {
		t.Errorf("re-focusing the already-focused channel should still succeed")
	}
	focused, _ = s.FocusedChannel()
	if focused != "#a" {
		t.Errorf("re-focusing should be idempotent, got %q", focused)
	}
}

func TestStateFocusChannelRejectsNonMember(t *testing.T) {
	s := NewState()
	s.SetMe("me")
	s.AddChannelMember("#a", "me")

	if s.FocusChannel("#nonmember") {
		t.Errorf("expected FocusChannel to fail for a channel the local user isn't in")
	}
}

func TestStateFocusedChannelBeforeRegistration(t *testing.T) {
	s := NewState()
	if _, ok := s.FocusedChannel(); ok {
		t.Errorf("expected no focused channel before SetMe is called")
	}
}
