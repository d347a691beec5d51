package engine

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/devitachiui22/aotravel-sub002/internal/apperrors"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
)

func newNegotiation(t *testing.T) (*Negotiation, *fakeNotifier) {
	t.Helper()
	notify := &fakeNotifier{}
	return NewNegotiation(testDB(t), notify, testLogger(), testConfig()), notify
}

func TestProposeOpensPendingProposal(t *testing.T) {
	n, notify := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	proposal, err := n.Propose(context.Background(), driver.ID, ride.ID, 2000, "heavy traffic on the route")
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if proposal.Status != models.ProposalStatusPending {
		t.Errorf("status = %q, want pending", proposal.Status)
	}
	if proposal.ProposedPrice != 2000 {
		t.Errorf("proposed price = %v, want 2000", proposal.ProposedPrice)
	}
	if n := notify.count(target("user", passenger.ID), "price_proposal"); n != 1 {
		t.Errorf("passenger price_proposal notifications = %d, want 1", n)
	}
}

func TestProposeBelowMinimumPrice(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	_, err := n.Propose(context.Background(), driver.ID, ride.ID, 50, "short hop")
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("kind = %v, want validation_error (err: %v)", apperrors.KindOf(err), err)
	}
}

func TestProposeOnlyAssignedDriver(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	other := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	_, err := n.Propose(context.Background(), other.ID, ride.ID, 2000, "traffic")
	if apperrors.KindOf(err) != apperrors.KindForbidden {
		t.Fatalf("kind = %v, want forbidden (err: %v)", apperrors.KindOf(err), err)
	}
}

func TestProposeOutsideNegotiableStates(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)

	for _, status := range []string{models.RideStatusArrived, models.RideStatusCompleted, models.RideStatusCancelled} {
		ride := createRide(t, n.db, passenger.ID, status, &driver.ID)
		_, err := n.Propose(context.Background(), driver.ID, ride.ID, 2000, "traffic")
		if apperrors.KindOf(err) != apperrors.KindInvalidState {
			t.Errorf("status %s: kind = %v, want invalid_state (err: %v)", status, apperrors.KindOf(err), err)
		}
		if err := n.db.Delete(ride).Error; err != nil {
			t.Fatalf("cleanup ride: %v", err)
		}
	}
}

func TestProposeSinglePendingInvariant(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	if _, err := n.Propose(context.Background(), driver.ID, ride.ID, 2000, "traffic"); err != nil {
		t.Fatalf("first Propose: %v", err)
	}
	_, err := n.Propose(context.Background(), driver.ID, ride.ID, 2500, "more traffic")
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("kind = %v, want conflict (err: %v)", apperrors.KindOf(err), err)
	}
}

func TestRespondAcceptCommitsPrice(t *testing.T) {
	n, notify := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	if _, err := n.Propose(context.Background(), driver.ID, ride.ID, 2000, "traffic"); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	proposal, err := n.Respond(context.Background(), passenger.ID, ride.ID, true, "fine")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if proposal.Status != models.ProposalStatusAccepted {
		t.Errorf("proposal status = %q, want accepted", proposal.Status)
	}
	if proposal.RespondedAt == nil {
		t.Error("responded_at not set")
	}

	got := reloadRide(t, n.db, ride.ID)
	if got.CommittedPrice == nil || *got.CommittedPrice != 2000 {
		t.Errorf("committed price = %v, want 2000", got.CommittedPrice)
	}
	if got.SettlementPrice() != 2000 {
		t.Errorf("settlement price = %v, want 2000", got.SettlementPrice())
	}
	if n := notify.count(target("user", driver.ID), "price_proposal_response"); n != 1 {
		t.Errorf("driver response notifications = %d, want 1", n)
	}
}

func TestRespondRejectLeavesPriceUntouched(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	if _, err := n.Propose(context.Background(), driver.ID, ride.ID, 2000, "traffic"); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	proposal, err := n.Respond(context.Background(), passenger.ID, ride.ID, false, "too much")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if proposal.Status != models.ProposalStatusRejected {
		t.Errorf("proposal status = %q, want rejected", proposal.Status)
	}
	if proposal.ResponseNote != "too much" {
		t.Errorf("response note = %q, want recorded note", proposal.ResponseNote)
	}

	got := reloadRide(t, n.db, ride.ID)
	if got.CommittedPrice != nil {
		t.Errorf("committed price = %v, want nil", *got.CommittedPrice)
	}
	if got.SettlementPrice() != got.RequestedPrice {
		t.Errorf("settlement price = %v, want requested %v", got.SettlementPrice(), got.RequestedPrice)
	}
}

func TestRespondWithoutPendingProposal(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	_, err := n.Respond(context.Background(), passenger.ID, ride.ID, true, "")
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("kind = %v, want conflict (err: %v)", apperrors.KindOf(err), err)
	}
}

func TestRespondTwiceResolvesOnce(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	if _, err := n.Propose(context.Background(), driver.ID, ride.ID, 2000, "traffic"); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := n.Respond(context.Background(), passenger.ID, ride.ID, false, "no"); err != nil {
		t.Fatalf("first Respond: %v", err)
	}

	_, err := n.Respond(context.Background(), passenger.ID, ride.ID, true, "changed my mind")
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("kind = %v, want conflict (err: %v)", apperrors.KindOf(err), err)
	}

	got := reloadRide(t, n.db, ride.ID)
	if got.CommittedPrice != nil {
		t.Errorf("committed price = %v after rejected proposal, want nil", *got.CommittedPrice)
	}
}

func TestRespondConcurrentCallsResolveOnce(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	if _, err := n.Propose(context.Background(), driver.ID, ride.ID, 2000, "traffic"); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Even callers accept, odd callers reject; at most one may land.
			_, errs[i] = n.Respond(context.Background(), passenger.ID, ride.ID, i%2 == 0, "race")
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apperrors.KindOf(err) == apperrors.KindConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if conflicts != racers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, racers-1)
	}

	var resolved int64
	if err := n.db.Model(&models.NegotiationProposal{}).
		Where("ride_id = ? AND status <> ?", ride.ID, models.ProposalStatusPending).
		Count(&resolved).Error; err != nil {
		t.Fatalf("count resolved proposals: %v", err)
	}
	if resolved != 1 {
		t.Errorf("resolved proposals = %d, want exactly 1", resolved)
	}

	// If the winner accepted, the committed price must match the proposal;
	// if it rejected, the committed price must still be unset.
	got := reloadRide(t, n.db, ride.ID)
	var proposal models.NegotiationProposal
	if err := n.db.Where("ride_id = ?", ride.ID).First(&proposal).Error; err != nil {
		t.Fatalf("load proposal: %v", err)
	}
	switch proposal.Status {
	case models.ProposalStatusAccepted:
		if got.CommittedPrice == nil || *got.CommittedPrice != 2000 {
			t.Errorf("committed price = %v, want 2000", got.CommittedPrice)
		}
	case models.ProposalStatusRejected:
		if got.CommittedPrice != nil {
			t.Errorf("committed price = %v after rejection, want nil", *got.CommittedPrice)
		}
	default:
		t.Errorf("proposal status = %q, want resolved", proposal.Status)
	}
}

func TestRespondOnlyRidePassenger(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	other := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	if _, err := n.Propose(context.Background(), driver.ID, ride.ID, 2000, "traffic"); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	_, err := n.Respond(context.Background(), other.ID, ride.ID, true, "")
	if apperrors.KindOf(err) != apperrors.KindForbidden {
		t.Fatalf("kind = %v, want forbidden (err: %v)", apperrors.KindOf(err), err)
	}
}

func TestNegotiationHistoryOrderAndStability(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	if _, err := n.Propose(context.Background(), driver.ID, ride.ID, 2000, "traffic"); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := n.Respond(context.Background(), passenger.ID, ride.ID, false, "too much"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, err := n.Propose(context.Background(), driver.ID, ride.ID, 1500, "meet in the middle"); err != nil {
		t.Fatalf("second Propose: %v", err)
	}
	if _, err := n.Respond(context.Background(), passenger.ID, ride.ID, true, "deal"); err != nil {
		t.Fatalf("second Respond: %v", err)
	}

	actor := Actor{ID: passenger.ID, Role: string(models.UserTypePassenger)}
	first, err := n.History(context.Background(), actor, ride.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("history length = %d, want 2", len(first))
	}
	if first[0].ProposedPrice != 2000 || first[1].ProposedPrice != 1500 {
		t.Errorf("history order wrong: %v then %v", first[0].ProposedPrice, first[1].ProposedPrice)
	}
	if first[0].Status != models.ProposalStatusRejected || first[1].Status != models.ProposalStatusAccepted {
		t.Errorf("history statuses = %q, %q", first[0].Status, first[1].Status)
	}

	second, err := n.History(context.Background(), actor, ride.ID)
	if err != nil {
		t.Fatalf("second History: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated reads returned different sequences")
	}
}

func TestNegotiationHistoryParticipantsOnly(t *testing.T) {
	n, _ := newNegotiation(t)
	passenger := createUser(t, n.db, models.UserTypePassenger)
	driver := createUser(t, n.db, models.UserTypeDriver)
	stranger := createUser(t, n.db, models.UserTypePassenger)
	ride := createRide(t, n.db, passenger.ID, models.RideStatusAccepted, &driver.ID)

	_, err := n.History(context.Background(),
		Actor{ID: stranger.ID, Role: string(models.UserTypePassenger)}, ride.ID)
	if apperrors.KindOf(err) != apperrors.KindForbidden {
		t.Fatalf("kind = %v, want forbidden (err: %v)", apperrors.KindOf(err), err)
	}

	if _, err := n.History(context.Background(),
		Actor{ID: stranger.ID, Role: string(models.UserTypeAdmin)}, ride.ID); err != nil {
		t.Errorf("admin History: %v", err)
	}
}
