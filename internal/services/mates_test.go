package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tsureben-backend/internal/models"
)

func TestMatesRequestAcceptHide(t *testing.T) {
	users := newFakeUsers(
		models.User{Email: "me@school.jp", Name: "自分"},
		models.User{Email: "hana@school.jp", Name: "花子"},
		models.User{Email: "ken@school.jp", Name: "健"},
	)
	s := NewMatesService(users)
	ctx := context.Background()

	if err := s.Request(ctx, "hana@school.jp", "me@school.jp"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := s.Request(ctx, "me@school.jp", "ken@school.jp"); err != nil {
		t.Fatalf("request: %v", err)
	}

	c, _ := s.Overview(ctx, "me@school.jp")
	if len(c.Received) != 1 || c.Received[0].Email != "hana@school.jp" || len(c.Sent) != 1 || len(c.Mutual) != 0 {
		t.Fatalf("unexpected overview %+v", c)
	}

	if err := s.Accept(ctx, "me@school.jp", "hana@school.jp"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	var conflict *ConflictError
	if err := s.Accept(ctx, "me@school.jp", "ken@school.jp"); !errors.As(err, &conflict) {
		t.Fatalf("expected accept without request to conflict, got %v", err)
	}

	c, _ = s.Overview(ctx, "me@school.jp")
	if len(c.Mutual) != 1 || c.Mutual[0].Email != "hana@school.jp" {
		t.Fatalf("expected hana mutual, got %+v", c)
	}

	var confirm *ConfirmationRequiredError
	if err := s.Hide(ctx, "me@school.jp", "hana@school.jp", false); !errors.As(err, &confirm) {
		t.Fatalf("expected confirmation required, got %v", err)
	}
	s.Hide(ctx, "me@school.jp", "hana@school.jp", true)
	s.Hide(ctx, "me@school.jp", "ken@school.jp", true)

	me, _ := users.GetByEmail(ctx, "me@school.jp")
	if len(me.HiddenMates) != 1 || me.HiddenMates[0] != "hana@school.jp" || len(me.HiddenRequests) != 1 || me.HiddenRequests[0] != "ken@school.jp" {
		t.Fatalf("unexpected hidden lists %+v / %+v", me.HiddenMates, me.HiddenRequests)
	}
	c, _ = s.Overview(ctx, "me@school.jp")
	if len(c.Mutual) != 0 || len(c.HiddenMates) != 1 || len(c.HiddenPending) != 1 {
		t.Fatalf("expected hidden users only in hidden lists, got %+v", c)
	}

	s.Unhide(ctx, "me@school.jp", "hana@school.jp")
	c, _ = s.Overview(ctx, "me@school.jp")
	if len(c.Mutual) != 1 {
		t.Fatalf("expected hana back after unhide, got %+v", c)
	}

	s.CancelRequest(ctx, "me@school.jp", "ken@school.jp")
	me, _ = users.GetByEmail(ctx, "me@school.jp")
	for _, e := range me.TurebenRequests {
		if e == "ken@school.jp" {
			t.Fatalf("expected request cancelled")
		}
	}
}

func TestMatesRequestValidation(t *testing.T) {
	users := newFakeUsers(models.User{Email: "me@school.jp"})
	s := NewMatesService(users)
	ctx := context.Background()

	var notFound *NotFoundError
	if err := s.Request(ctx, "me@school.jp", "ghost@school.jp"); !errors.As(err, &notFound) {
		t.Fatalf("expected unknown user rejected, got %v", err)
	}
	var validation *ValidationError
	if err := s.Request(ctx, "me@school.jp", "me@school.jp"); !errors.As(err, &validation) {
		t.Fatalf("expected self request rejected, got %v", err)
	}
}

func TestMatesSearch(t *testing.T) {
	users := newFakeUsers(models.User{Email: "me@school.jp", Name: "山田"})
	for i := 0; i < 15; i++ {
		users.Create(context.Background(), &models.User{Email: fmt.Sprintf("y%02d@school.jp", i), Name: fmt.Sprintf("山田%d", i)})
	}
	s := NewMatesService(users)

	found, err := s.Search(context.Background(), "me@school.jp", " 山田 ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != mateSearchLimit {
		t.Fatalf("expected %d results, got %d", mateSearchLimit, len(found))
	}
	for _, u := range found {
		if u.Email == "me@school.jp" {
			t.Fatalf("search must exclude the caller")
		}
	}
	if empty, _ := s.Search(context.Background(), "me@school.jp", ""); len(empty) != 0 {
		t.Fatalf("expected blank query to return nothing")
	}
}
