package sceneasset

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

type recordingObserver struct {
	mu  sync.Mutex
	got []string
}

func (o *recordingObserver) ObserveSceneLoad(target, outcome string, _ time.Duration, resources int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, target+"/"+outcome+"/"+strconv.Itoa(resources))
}

func TestLoadReportsOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	src := &stubSource{data: robotArchive(t, pointerManifest)}
	p, err := New(logger.NewNop(), Config{
		Source:     src,
		Registry:   NewBlobRegistry("blob:test/"),
		Resolution: &ResolutionContext{},
		Observer:   obs,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Load(context.Background(), "42", ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	src.err = &Error{Kind: KindUpstreamFailure, Status: http.StatusBadGateway}
	_, _ = p.Load(context.Background(), "42", TargetCustom)

	ctx, cancel := context.WithCancel(context.Background())
	src.err = nil
	src.after = cancel
	_, _ = p.Load(ctx, "42", TargetDefault)

	want := "both/ok/5,custom/" + string(KindUpstreamFailure) + "/0,default/cancelled/0"
	if got := strings.Join(obs.got, ","); got != want {
		t.Fatalf("observations: want=%q got=%q", want, got)
	}
}
