package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/consentscan/internal/browser"
	"github.com/nao1215/consentscan/internal/browser/browsertest"
	"github.com/nao1215/consentscan/internal/model"
)

const entry = "https://www.example.com/"

func storageEval(result storageResult, err error) func(string, []any) (any, error) {
	return func(js string, _ []any) (any, error) {
		if js != storageScript {
			return nil, errors.New("unexpected script")
		}
		return result, err
	}
}

func newSitePage() *browsertest.Page {
	page := browsertest.NewPage()
	page.Documents[entry] = &browsertest.Document{
		Requests: []browser.RequestEvent{
			{URL: "https://www.example.com/app.js", ResourceType: "Script"},
			{URL: "https://www.google-analytics.com/g/collect?v=2", ResourceType: "XHR"},
			{URL: "https://static.example.com/logo.png", ResourceType: "Image"},
			{URL: "https://www.google-analytics.com/g/collect?v=2", ResourceType: "XHR"},
			{URL: "data:image/png;base64,AAAA", ResourceType: "Image"},
		},
	}
	page.Jar = []browser.Cookie{
		{Name: "_ga", Value: "GA1.1.1", Domain: ".example.com", Path: "/", Expires: 1_900_000_000},
		{Name: "IDE", Value: "x", Domain: ".doubleclick.net", Path: "/", HTTPOnly: true, Secure: true, SameSite: "None"},
	}
	page.EvalFunc = storageEval(storageResult{
		Origin:  "https://www.example.com",
		Href:    entry,
		Local:   []storageItem{{Key: "_hjid", Value: "abc"}},
		Session: []storageItem{{Key: "cart", Value: "[]"}},
		Signals: []string{"TCF", "GPP"},
	}, nil)
	return page
}

func TestCollect(t *testing.T) {
	t.Parallel()

	page := newSitePage()
	if err := page.Navigate(context.Background(), entry); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	snap := New(WithReloadBuffer(0)).Collect(context.Background(), page, "www.example.com")

	t.Run("captures off-site requests once", func(t *testing.T) {
		t.Parallel()
		if len(snap.Requests) != 2 {
			t.Fatalf("Requests = %+v", snap.Requests)
		}
		if snap.Requests[0].Hostname != "www.google-analytics.com" || snap.Requests[0].ResourceType != "XHR" {
			t.Errorf("first request = %+v", snap.Requests[0])
		}
		if snap.Requests[1].Hostname != "static.example.com" {
			t.Errorf("second request = %+v", snap.Requests[1])
		}
	})

	t.Run("reads the whole cookie jar", func(t *testing.T) {
		t.Parallel()
		if len(snap.Cookies) != 2 {
			t.Fatalf("Cookies = %+v", snap.Cookies)
		}
		ide := snap.Cookies[1]
		if !ide.HTTPOnly || !ide.Secure || ide.SameSite != "None" {
			t.Errorf("IDE flags lost: %+v", ide)
		}
	})

	t.Run("reads both storage areas", func(t *testing.T) {
		t.Parallel()
		if len(snap.Storage) != 2 {
			t.Fatalf("Storage = %+v", snap.Storage)
		}
		if snap.Storage[0].Area != model.StorageLocal || snap.Storage[1].Area != model.StorageSession {
			t.Errorf("areas = %v, %v", snap.Storage[0].Area, snap.Storage[1].Area)
		}
		if snap.Storage[0].PageURL != entry || snap.Storage[0].Origin != "https://www.example.com" {
			t.Errorf("storage item = %+v", snap.Storage[0])
		}
	})

	t.Run("reports frameworks sorted", func(t *testing.T) {
		t.Parallel()
		if len(snap.Frameworks) != 2 || snap.Frameworks[0] != "GPP" {
			t.Errorf("Frameworks = %v", snap.Frameworks)
		}
	})

	t.Run("flattens into observations", func(t *testing.T) {
		t.Parallel()
		obs := snap.Observations()
		if len(obs) != 6 {
			t.Fatalf("got %d observations", len(obs))
		}
		if obs[0].Kind != model.KindCookie || obs[2].Kind != model.KindRequest || obs[5].Kind != model.KindStorage {
			t.Errorf("unexpected kind order")
		}
	})
}

func TestCollectReleasesListener(t *testing.T) {
	t.Parallel()

	page := newSitePage()
	_ = page.Navigate(context.Background(), entry)
	page.ReloadErr = errors.New("net::ERR_ABORTED")

	snap := New(WithReloadBuffer(0)).Collect(context.Background(), page, "www.example.com")
	if page.Listeners() != 0 {
		t.Errorf("listener still attached after failed reload")
	}
	if len(snap.Requests) != 0 {
		t.Errorf("Requests = %+v", snap.Requests)
	}
	if len(snap.Cookies) != 2 {
		t.Errorf("cookies should still be read after a failed reload, got %d", len(snap.Cookies))
	}
}

func TestCollectPartialData(t *testing.T) {
	t.Parallel()

	t.Run("cookie read failure", func(t *testing.T) {
		t.Parallel()
		page := newSitePage()
		_ = page.Navigate(context.Background(), entry)
		page.CookiesErr = errors.New("target closed")

		snap := New(WithReloadBuffer(0)).Collect(context.Background(), page, "www.example.com")
		if len(snap.Cookies) != 0 || len(snap.Storage) != 2 || len(snap.Requests) != 2 {
			t.Errorf("snapshot = %+v", snap)
		}
	})

	t.Run("storage read failure", func(t *testing.T) {
		t.Parallel()
		page := newSitePage()
		_ = page.Navigate(context.Background(), entry)
		page.EvalFunc = storageEval(storageResult{}, errors.New("SecurityError"))

		snap := New(WithReloadBuffer(0)).Collect(context.Background(), page, "www.example.com")
		if len(snap.Storage) != 0 || len(snap.Cookies) != 2 {
			t.Errorf("snapshot = %+v", snap)
		}
		if snap.Empty() {
			t.Error("snapshot should not be empty")
		}
	})
}
