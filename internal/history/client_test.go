package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"eatup/internal/domain"
)

func decodeBody(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

func TestFetchMessagesMapsAuthorsAndEditedVariants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/groups/Avondeten/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 1, "content": "hoi", "timestamp": "2025-05-01T12:00:00Z",
			 "author": {"id": 7, "name": "Doe", "firstName": "Jane", "email": "jane@example.com"},
			 "isEdited": true},
			{"id": 2, "content": "hallo", "edited": false,
			 "author": {"email": "bob@example.com"}}
		]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", nil)
	msgs, err := client.FetchMessages(context.Background(), domain.Group{ID: "g1", Name: "Avondeten"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	first := msgs[0]
	if first.ID != "1" || !first.Edited {
		t.Fatalf("unexpected first message: %+v", first)
	}
	if first.Author.ID != "7" || first.Author.FirstName != "Jane" || first.Author.Email != "jane@example.com" {
		t.Fatalf("unexpected author mapping: %+v", first.Author)
	}
	if first.SentAt.IsZero() {
		t.Fatalf("expected parsed timestamp")
	}

	second := msgs[1]
	if second.Edited {
		t.Fatalf("expected legacy edited key to map to false")
	}
	if second.SentAt.IsZero() {
		t.Fatalf("expected missing timestamp to default to now")
	}
	if second.Author.Email != "bob@example.com" || second.Author.ID != "" {
		t.Fatalf("unexpected partial author: %+v", second.Author)
	}
}

func TestFetchGroupsEnrichesMembers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/users/groups":
			if got := r.URL.Query().Get("email"); got != "me@example.com" {
				t.Errorf("unexpected email param: %q", got)
			}
			_, _ = w.Write([]byte(`[{"id": 1, "name": "Avondeten", "missedMessages": 3}]`))
		case "/groups/getMembers/1":
			_, _ = w.Write([]byte(`["Jane", "Bob"]`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", nil)
	groups, err := client.FetchGroups(context.Background(), "me@example.com")
	if err != nil {
		t.Fatalf("fetch groups failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.ID != "1" || g.Name != "Avondeten" || g.MissedMessages != 3 {
		t.Fatalf("unexpected group: %+v", g)
	}
	if len(g.MemberNames) != 2 || g.MemberNames[0] != "Jane" {
		t.Fatalf("unexpected members: %v", g.MemberNames)
	}
}

func TestFetchGroupsMemberLookupFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/groups":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id": 1, "name": "Avondeten"}]`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", nil)
	groups, err := client.FetchGroups(context.Background(), "me@example.com")
	if err != nil {
		t.Fatalf("fetch groups failed: %v", err)
	}
	if len(groups) != 1 || groups[0].MemberNames != nil {
		t.Fatalf("expected group with empty members, got %+v", groups)
	}
}

func TestRequestsRefusedWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request should be attempted without a token")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", nil)
	if _, err := client.FetchMessages(context.Background(), domain.Group{Name: "X"}); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestSendMessageLegacyPath(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("groupName")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", nil)
	group := domain.Group{ID: "g1", Name: "Avondeten"}
	if err := client.SendMessage(context.Background(), group, "  hallo  ", "me@example.com"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotPath != "/messages/Avondeten" || gotQuery != "Avondeten" {
		t.Fatalf("unexpected request: path=%q groupName=%q", gotPath, gotQuery)
	}

	// Blank content is a silent no-op.
	gotPath = ""
	if err := client.SendMessage(context.Background(), group, "   ", "me@example.com"); err != nil {
		t.Fatalf("blank send errored: %v", err)
	}
	if gotPath != "" {
		t.Fatalf("expected no request for blank content")
	}
}

func TestCreateGroupCollectsFailedInvites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/groups/create":
			_, _ = w.Write([]byte(`{"id": 9, "name": "Lunch"}`))
		case "/groups/addUser":
			var payload struct {
				NewUserEmail string `json:"newUserEmail"`
			}
			_ = decodeBody(r, &payload)
			if payload.NewUserEmail == "broken@example.com" {
				w.WriteHeader(http.StatusBadRequest)

				return
			}
			w.WriteHeader(http.StatusOK)
		case "/groups/getMembers/9":
			_, _ = w.Write([]byte(`["Me", "Jane"]`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", nil)
	group, failed, err := client.CreateGroup(
		context.Background(),
		"Lunch",
		[]string{"jane@example.com", "broken@example.com", "ME@example.com", ""},
		"me@example.com",
	)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if group.ID != "9" || group.Name != "Lunch" {
		t.Fatalf("unexpected group: %+v", group)
	}
	if len(failed) != 1 || failed[0] != "broken@example.com" {
		t.Fatalf("unexpected failed invites: %v", failed)
	}
	if len(group.MemberNames) != 2 {
		t.Fatalf("unexpected members: %v", group.MemberNames)
	}
}
