package stream_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomworksco/loom/pkg/stream"
)

// sinkRecorder collects sink invocations for assertions.
type sinkRecorder struct {
	mu        sync.Mutex
	fragments []string
	errs      []*stream.StreamError
	completes int
}

func (r *sinkRecorder) config(target string) stream.Config {
	return stream.Config{
		Target: target,
		Role:   "You are a helpful assistant.",
		OnFragment: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.fragments = append(r.fragments, text)
		},
		OnError: func(serr *stream.StreamError) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, serr)
		},
		OnComplete: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completes++
		},
	}
}

func (r *sinkRecorder) Fragments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fragments...)
}

func (r *sinkRecorder) Errors() []*stream.StreamError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*stream.StreamError(nil), r.errs...)
}

func (r *sinkRecorder) Completes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes
}

// sseServer writes each chunk verbatim and flushes between them, so chunk
// boundaries survive to the client.
func sseServer(chunks ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl := w.(http.Flusher)
		for _, chunk := range chunks {
			_, _ = io.WriteString(w, chunk)
			fl.Flush()
		}
	}))
}

// eofOnCancelBody blocks reads until the request context ends, then reports
// a clean end of stream, as a transport does when the server closes the
// connection in response to the client going away.
type eofOnCancelBody struct {
	ctx context.Context
}

func (b *eofOnCancelBody) Read([]byte) (int, error) {
	<-b.ctx.Done()
	return 0, io.EOF
}

func (b *eofOnCancelBody) Close() error { return nil }

// eofOnCancelTransport serves a 200 whose body only ends, cleanly, once the
// request has been cancelled.
type eofOnCancelTransport struct{}

func (eofOnCancelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       &eofOnCancelBody{ctx: req.Context()},
		Request:    req,
	}, nil
}

func llmEvent(content string) string {
	return `data:{"msgType":"llmStream","data":{"content":"` + content + `","isEnd":false}}` + "\n\n"
}

var _ = Describe("Session", func() {
	It("delivers fragments verbatim, in order, then completes", func() {
		srv := sseServer(
			llmEvent("Hel"),
			llmEvent("lo"),
			llmEvent("!"),
		)
		defer srv.Close()

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(srv.URL))

		Expect(session.Start(context.Background(), "say hello")).To(Succeed())
		Eventually(session.Done()).Should(BeClosed())

		Expect(rec.Fragments()).To(Equal([]string{"Hel", "lo", "!"}))
		Expect(rec.Completes()).To(Equal(1))
		Expect(rec.Errors()).To(BeEmpty())
		Expect(session.State()).To(Equal(stream.StateCompleted))
	})

	It("reassembles an event split across body chunks", func() {
		full := llmEvent("Hi")
		cut := len(full) / 2
		srv := sseServer(full[:cut], full[cut:])
		defer srv.Close()

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(srv.URL))

		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		Eventually(session.Done()).Should(BeClosed())

		Expect(rec.Fragments()).To(Equal([]string{"Hi"}))
	})

	It("reports a non-2xx status exactly once, with no fragments", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(srv.URL))

		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		Eventually(session.Done()).Should(BeClosed())

		errs := rec.Errors()
		Expect(errs).To(HaveLen(1))
		Expect(errs[0].Kind).To(Equal(stream.KindHTTPStatus))
		Expect(errs[0].Status).To(Equal(http.StatusInternalServerError))
		Expect(rec.Fragments()).To(BeEmpty())
		Expect(rec.Completes()).To(BeZero())
		Expect(session.State()).To(Equal(stream.StateFailed))
	})

	It("silently skips heartbeats, blank lines and empty payloads", func() {
		srv := sseServer(
			": heartbeat\n\n",
			"data:\n\n",
			"data:   \n\n",
			llmEvent("ok"),
		)
		defer srv.Close()

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(srv.URL))

		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		Eventually(session.Done()).Should(BeClosed())

		Expect(rec.Fragments()).To(Equal([]string{"ok"}))
		Expect(rec.Completes()).To(Equal(1))
	})

	It("drops a malformed event and keeps decoding later ones", func() {
		srv := sseServer(
			"data:{not json\n\n",
			"data:{\"msgType\":\"wat\"}\n\n",
			llmEvent("still here"),
		)
		defer srv.Close()

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(srv.URL))

		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		Eventually(session.Done()).Should(BeClosed())

		Expect(rec.Fragments()).To(Equal([]string{"still here"}))
		Expect(rec.Errors()).To(BeEmpty())
	})

	It("ignores node and flow envelopes", func() {
		srv := sseServer(
			`data:{"msgType":"flow","data":{"status":"started"}}`+"\n\n",
			`data:{"msgType":"node","data":{"nodeId":"n1","nodeType":"llm"}}`+"\n\n",
			llmEvent("text"),
		)
		defer srv.Close()

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(srv.URL))

		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		Eventually(session.Done()).Should(BeClosed())

		Expect(rec.Fragments()).To(Equal([]string{"text"}))
	})

	It("skips llmStream events whose content is absent or empty", func() {
		srv := sseServer(
			`data:{"msgType":"llmStream","data":{"isEnd":false}}`+"\n\n",
			`data:{"msgType":"llmStream","data":{"content":"","isEnd":true}}`+"\n\n",
			llmEvent("real"),
		)
		defer srv.Close()

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(srv.URL))

		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		Eventually(session.Done()).Should(BeClosed())

		Expect(rec.Fragments()).To(Equal([]string{"real"}))
	})

	It("delivers no sink calls once Cancel has returned", func() {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
			_, _ = io.WriteString(w, llmEvent("too late"))
		}))
		defer srv.Close()
		defer close(release)

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(srv.URL))

		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		session.Cancel()

		Eventually(session.Done()).Should(BeClosed())
		Expect(rec.Fragments()).To(BeEmpty())
		Expect(rec.Errors()).To(BeEmpty())
		Expect(rec.Completes()).To(BeZero())
		Expect(session.State()).To(Equal(stream.StateCancelled))
	})

	It("stays cancelled when the body ends cleanly after Cancel", func() {
		rec := &sinkRecorder{}
		cfg := rec.config("http://flow.invalid/chat")
		cfg.HTTPClient = &http.Client{Transport: eofOnCancelTransport{}}

		session := stream.NewSession(cfg)
		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		Eventually(session.State).Should(Equal(stream.StateStreaming))

		session.Cancel()
		Eventually(session.Done()).Should(BeClosed())

		Expect(session.State()).To(Equal(stream.StateCancelled))
		Expect(rec.Completes()).To(BeZero())
		Expect(rec.Errors()).To(BeEmpty())
	})

	It("is single-use", func() {
		srv := sseServer(llmEvent("once"))
		defer srv.Close()

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(srv.URL))

		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		Expect(session.Start(context.Background(), "again")).To(MatchError(stream.ErrAlreadyStarted))
		Eventually(session.Done()).Should(BeClosed())
	})

	It("refuses to start after Cancel", func() {
		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config("http://localhost:1"))

		session.Cancel()
		Expect(session.Start(context.Background(), "hi")).To(MatchError(stream.ErrCancelled))
	})

	It("returns an invalid_request error for a malformed target", func() {
		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config("::not a url"))

		err := session.Start(context.Background(), "hi")

		var serr *stream.StreamError
		Expect(errors.As(err, &serr)).To(BeTrue())
		Expect(serr.Kind).To(Equal(stream.KindInvalidRequest))
		Expect(rec.Errors()).To(BeEmpty())
	})

	It("reports a connection failure as a transport error", func() {
		srv := sseServer()
		url := srv.URL
		srv.Close()

		rec := &sinkRecorder{}
		session := stream.NewSession(rec.config(url))

		Expect(session.Start(context.Background(), "hi")).To(Succeed())
		Eventually(session.Done()).Should(BeClosed())

		errs := rec.Errors()
		Expect(errs).To(HaveLen(1))
		Expect(errs[0].Kind).To(Equal(stream.KindTransport))
		Expect(session.State()).To(Equal(stream.StateFailed))
	})
})
