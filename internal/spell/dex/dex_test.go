package dex

import "testing"

func TestIsDexAppID(t *testing.T) {
	zeroed := "b/" + zeroIdentity + "/"

	cases := []struct {
		name  string
		appID string
		want  bool
	}{
		{"cast v01", zeroed + CastV01, true},
		{"cast v02", zeroed + CastV02, true},
		{"wrong tag", "t/" + zeroIdentity + "/" + CastV01, false},
		{"non-zero identity", "b/abc/" + CastV01, false},
		{"unknown vk", zeroed + "deadbeef", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDexAppID(tc.appID); got != tc.want {
				t.Errorf("IsDexAppID(%q) = %v, want %v", tc.appID, got, tc.want)
			}
		})
	}
}

func TestIsBroToken(t *testing.T) {
	if !IsBroToken("t/" + BroIdentity1 + "/vk") {
		t.Error("expected BroIdentity1 to match")
	}
	if !IsBroToken("t/" + BroIdentity2 + "/vk") {
		t.Error("expected BroIdentity2 to match")
	}
	if IsBroToken("t/notbro/vk") {
		t.Error("expected non-bro app_id not to match")
	}
}

func TestOperationTag(t *testing.T) {
	if OpNone.Tag() != "" {
		t.Errorf("OpNone.Tag() = %q, want empty", OpNone.Tag())
	}
	if OpCreateAskOrder.Tag() != "create-ask" {
		t.Errorf("OpCreateAskOrder.Tag() = %q", OpCreateAskOrder.Tag())
	}
}
