package envelope

import (
	"testing"
	"time"
)

func TestAuthorityClaim_IsExpired(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name    string
		expires *time.Time
		want    bool
	}{
		{"no expiry", nil, false},
		{"expired", &past, true},
		{"not yet expired", &future, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			claim := AuthorityClaim{ExpiresAt: c.expires}
			if got := claim.IsExpired(now); got != c.want {
				t.Errorf("IsExpired() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestAuthorityClaim_Permits(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	cases := []struct {
		name   string
		claim  AuthorityClaim
		agent  string
		action string
		want   bool
	}{
		{
			name:  "wildcard empty actions",
			claim: AuthorityClaim{GrantedTo: "cos"},
			agent: "cos", action: "send-email", want: true,
		},
		{
			name:  "named action matches",
			claim: AuthorityClaim{GrantedTo: "cos", PermittedActions: []string{"send-email"}},
			agent: "cos", action: "send-email", want: true,
		},
		{
			name:  "named action mismatch",
			claim: AuthorityClaim{GrantedTo: "cos", PermittedActions: []string{"send-email"}},
			agent: "cos", action: "delete-account", want: false,
		},
		{
			name:  "wrong target",
			claim: AuthorityClaim{GrantedTo: "writer"},
			agent: "cos", action: "send-email", want: false,
		},
		{
			name:  "expired claim",
			claim: AuthorityClaim{GrantedTo: "cos", ExpiresAt: &past},
			agent: "cos", action: "send-email", want: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.claim.Permits(c.agent, c.action, now); got != c.want {
				t.Errorf("Permits() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestHighestTier(t *testing.T) {
	if got := HighestTier(nil); got != JustDoIt {
		t.Errorf("HighestTier(nil) = %v, want JustDoIt", got)
	}

	claims := []AuthorityClaim{
		{Tier: JustDoIt},
		{Tier: AskMeFirst},
		{Tier: DoItAndShowMe},
	}
	if got := HighestTier(claims); got != AskMeFirst {
		t.Errorf("HighestTier() = %v, want AskMeFirst", got)
	}
}

func TestEffectiveTier(t *testing.T) {
	if got := EffectiveTier(AskMeFirst, DoItAndShowMe); got != DoItAndShowMe {
		t.Errorf("EffectiveTier() = %v, want DoItAndShowMe", got)
	}
	if got := EffectiveTier(JustDoIt, AskMeFirst); got != JustDoIt {
		t.Errorf("EffectiveTier() = %v, want JustDoIt", got)
	}
}

func TestParseTier(t *testing.T) {
	cases := []struct {
		in      string
		want    AuthorityTier
		wantErr bool
	}{
		{"", JustDoIt, false},
		{"JustDoIt", JustDoIt, false},
		{"DoItAndShowMe", DoItAndShowMe, false},
		{"AskMeFirst", AskMeFirst, false},
		{"Unknown", JustDoIt, true},
	}
	for _, c := range cases {
		got, err := ParseTier(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseTier(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
		if got != c.want {
			t.Errorf("ParseTier(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
