package community

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, []string{}},
		{[]string{" a ", "", "b"}, []string{"a", "b"}},
		{[]string{"Lung", "lung", "LUNG "}, []string{"Lung"}},
	}
	for _, tt := range tests {
		if got := normalizeTags(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("normalizeTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAuthorName(t *testing.T) {
	if got := authorName("Ada", "", "ada"); got != "Ada" {
		t.Errorf("got %q", got)
	}
	if got := authorName(" ", "", "ada"); got != "ada" {
		t.Errorf("got %q", got)
	}
}

func TestMemberCommunity_JSONFlattened(t *testing.T) {
	mc := &MemberCommunity{
		Summary:     &Summary{Community: &Community{ID: uuid.New(), Name: "Circle"}, MemberCount: 2, Moderators: []string{"ada"}},
		JoinedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		IsModerator: true,
	}
	b, err := json.Marshal(mc)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"name":"Circle"`, `"member_count":2`, `"is_moderator":true`, `"joined_at":"2026-01-02T03:04:05Z"`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("missing %s in %s", want, b)
		}
	}
}
