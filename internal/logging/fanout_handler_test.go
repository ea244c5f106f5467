package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected the single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := newFanoutHandler(infoHandler, debugHandler)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout to be enabled for debug when one handler accepts it")
	}

	logger := slog.New(h)
	logger.Debug("debug only")
	if infoBuf.Len() != 0 {
		t.Fatalf("info handler received debug record: %s", infoBuf.String())
	}
	if debugBuf.Len() == 0 {
		t.Fatal("debug handler missed debug record")
	}

	debugBuf.Reset()
	logger.Info("both")
	if infoBuf.Len() == 0 || debugBuf.Len() == 0 {
		t.Fatal("expected info record in both handlers")
	}
}

func TestFanoutHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("run_id", "r1")}).WithGroup("job"))
	logger.Info("done", slog.String("state", "succeeded"))

	for name, buf := range map[string]*bytes.Buffer{"first": &buf1, "second": &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"run_id":"r1"`)) {
			t.Fatalf("%s handler missing attr: %s", name, buf.String())
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"job":{"state":"succeeded"}`)) {
			t.Fatalf("%s handler missing group: %s", name, buf.String())
		}
	}
}
