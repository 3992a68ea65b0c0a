package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"offersync/internal/models"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "offers.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTemp(t)
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := Entry{At: at, Offers: []models.Offer{
		{ID: "o1", Status: models.OfferPending, Price: 100, Quantity: 3},
	}}

	if err := s.Save(BucketBuyer, "buyer-1", entry); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.Load(BucketBuyer, "buyer-1")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("entry not found after save")
	}
	if !got.At.Equal(at) {
		t.Errorf("at = %v, want %v", got.At, at)
	}
	if len(got.Offers) != 1 || got.Offers[0].ID != "o1" || got.Offers[0].Price != 100 {
		t.Errorf("offers = %+v", got.Offers)
	}

	// The two buckets are independent key spaces.
	if _, found, _ := s.Load(BucketSupplier, "buyer-1"); found {
		t.Error("entry leaked into the supplier bucket")
	}
}

func TestLoadMissing(t *testing.T) {
	s := openTemp(t)
	_, found, err := s.Load(BucketSupplier, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("found entry that was never saved")
	}
}

func TestSaveReplacesAndEach(t *testing.T) {
	s := openTemp(t)
	first := Entry{At: time.Now().UTC(), Offers: []models.Offer{{ID: "old"}}}
	second := Entry{At: time.Now().UTC(), Offers: []models.Offer{{ID: "new"}}}

	if err := s.Save(BucketSupplier, "sup-1", first); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(BucketSupplier, "sup-1", second); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(BucketSupplier, "sup-2", first); err != nil {
		t.Fatal(err)
	}

	seen := map[string]string{}
	err := s.Each(BucketSupplier, func(actorID string, e Entry) error {
		seen[actorID] = e.Offers[0].ID
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen["sup-1"] != "new" || seen["sup-2"] != "old" {
		t.Fatalf("seen = %v", seen)
	}
}
