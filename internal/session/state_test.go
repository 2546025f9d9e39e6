package session

import "testing"

func TestNew_Defaults(t *testing.T) {
	s := New()
	if s.Status.Get() != StatusIdle {
		t.Errorf("Status = %q, want idle", s.Status.Get())
	}
	if s.Permissions.Get() != (Permissions{}) {
		t.Errorf("Permissions = %+v, want all false", s.Permissions.Get())
	}
	if s.PermissionsSet() {
		t.Error("PermissionsSet() = true on a fresh state")
	}
	if s.LastError.Get() != nil {
		t.Error("LastError should be nil")
	}
}

func TestApplyPermissions_OncePerConnection(t *testing.T) {
	s := New()
	first := Permissions{AllowReauth: true, AllowReplay: true}
	if !s.ApplyPermissions(first) {
		t.Fatal("first ApplyPermissions should succeed")
	}
	if s.ApplyPermissions(Permissions{AllowReconnect: true}) {
		t.Error("second ApplyPermissions should be ignored")
	}
	if got := s.Permissions.Get(); got != first {
		t.Errorf("Permissions = %+v, want %+v", got, first)
	}

	s.ResetConnection()
	if got := s.Permissions.Get(); got != (Permissions{}) {
		t.Errorf("after reset Permissions = %+v, want defaults", got)
	}
	if !s.ApplyPermissions(Permissions{AutoLog: true}) {
		t.Error("ApplyPermissions after reset should succeed")
	}
}

func TestReset(t *testing.T) {
	s := New()
	s.Status.Set(StatusError)
	s.ReauthRequired.Set(true)
	s.Authenticated.Set(true)
	s.LastError.Set(&ErrorView{Kind: "error", Message: "boom"})
	s.ApplyPermissions(Permissions{AllowReauth: true})

	s.Reset()

	if s.Status.Get() != StatusIdle || s.ReauthRequired.Get() || s.Authenticated.Get() || s.LastError.Get() != nil {
		t.Errorf("Reset left state behind: status=%q reauth=%v auth=%v err=%v",
			s.Status.Get(), s.ReauthRequired.Get(), s.Authenticated.Get(), s.LastError.Get())
	}
	if s.PermissionsSet() {
		t.Error("PermissionsSet() should be false after Reset")
	}
}

func TestStatus_Active(t *testing.T) {
	tests := map[Status]bool{
		StatusIdle:           false,
		StatusConnecting:     true,
		StatusAuthenticating: true,
		StatusConnected:      true,
		StatusReauthRequired: false,
		StatusError:          false,
	}
	for st, want := range tests {
		if got := st.Active(); got != want {
			t.Errorf("%q.Active() = %v, want %v", st, got, want)
		}
	}
}

func TestAlgorithmSet_Empty(t *testing.T) {
	if !(AlgorithmSet{}).Empty() {
		t.Error("zero AlgorithmSet should be empty")
	}
	if (AlgorithmSet{Cipher: []string{"aes128-ctr"}}).Empty() {
		t.Error("AlgorithmSet with a cipher should not be empty")
	}
}
