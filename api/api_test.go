package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/textgen/pkg/engine"
	"github.com/papercomputeco/textgen/pkg/eventstream"
	"github.com/papercomputeco/textgen/pkg/generation"
	"github.com/papercomputeco/textgen/pkg/logger"
	"github.com/papercomputeco/textgen/pkg/tokenizer"
	testutils "github.com/papercomputeco/textgen/pkg/utils/test"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.GenerationCompletedEvent
}

func (p *recordingPublisher) PublishGeneration(_ context.Context, event *eventstream.GenerationCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []*eventstream.GenerationCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.GenerationCompletedEvent(nil), p.events...)
}

func doRequest(s *Server, method, path, body string) (*http.Response, string) {
	GinkgoHelper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, string(raw)
}

func detailOf(body string) string {
	GinkgoHelper()
	var out ErrorResponse
	Expect(json.Unmarshal([]byte(body), &out)).To(Succeed())
	return out.Detail
}

var _ = Describe("Server", func() {
	var (
		backends  *testutils.MockBackends
		prober    *testutils.MockProber
		publisher *recordingPublisher
		registry  *prometheus.Registry
		server    *Server
		config    Config
	)

	newServer := func() *Server {
		GinkgoHelper()

		tok, err := tokenizer.New("")
		Expect(err).NotTo(HaveOccurred())

		handle, err := engine.New(engine.Config{
			Tokenizer:  tok,
			Prober:     prober,
			NewBackend: backends.Factory,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(handle.Close)

		orchestrator, err := generation.NewOrchestrator(generation.Config{
			Engine: handle,
			Logger: logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		s, err := NewServer(config, orchestrator, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		backends = testutils.NewMockBackends()
		prober = testutils.NewMockProber()
		publisher = &recordingPublisher{}
		registry = prometheus.NewRegistry()
		config = Config{
			ListenAddr: ":0",
			Publisher:  publisher,
			Registry:   registry,
		}
	})

	JustBeforeEach(func() {
		server = newServer()
	})

	Describe("NewServer", func() {
		It("requires a generator", func() {
			_, err := NewServer(Config{}, nil, logger.Nop())
			Expect(err).To(MatchError("generator is required"))
		})

		It("requires a logger", func() {
			_, err := NewServer(Config{}, &stubGenerator{}, nil)
			Expect(err).To(MatchError("logger is required"))
		})
	})

	Describe("GET /", func() {
		It("returns the hello world message", func() {
			resp, body := doRequest(server, http.MethodGet, "/", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body).To(MatchJSON(`{"message": "Hello, World!"}`))
		})
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp, body := doRequest(server, http.MethodGet, "/ping", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body).To(Equal(`"pong"`))
		})
	})

	Describe("POST /predict", func() {
		It("returns the prompt followed by the continuation", func() {
			resp, body := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Once upon a time"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body).To(MatchJSON(`{"generated_text": "Once upon a time and they lived happily ever after."}`))
		})

		It("applies the documented defaults", func() {
			_, _ = doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello world"}`)

			reqs := backends.For(generation.DeviceCPU).Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].NewTokens).To(Equal(48))
			Expect(reqs[0].Temperature).To(Equal(1.0))
			Expect(reqs[0].TopK).To(Equal(50))
			Expect(reqs[0].TopP).To(Equal(1.0))
			Expect(reqs[0].Greedy).To(BeFalse())
		})

		It("generates from a typical prompt", func() {
			resp, body := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello, I'm an LLM", "max_length": 50}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out PredictResponse
			Expect(json.Unmarshal([]byte(body), &out)).To(Succeed())
			Expect(out.GeneratedText).To(HavePrefix("Hello, I'm an LLM"))
		})

		It("reads a body sent without a Content-Type as JSON", func() {
			req, err := http.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"prompt": "Hello", "max_length": 3}`))
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})

		It("rejects non-JSON content types", func() {
			req, err := http.NewRequest(http.MethodPost, "/predict", strings.NewReader("prompt=Hello"))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(detailOf(string(raw))).To(Equal("Content-Type must be application/json."))
		})

		It("stops at max_length tokens", func() {
			resp, body := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Once upon a time", "max_length": 5}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body).To(MatchJSON(`{"generated_text": "Once upon a time and"}`))
		})

		DescribeTable("rejects invalid requests with 400",
			func(payload, detail string) {
				resp, body := doRequest(server, http.MethodPost, "/predict", payload)
				Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
				Expect(detailOf(body)).To(Equal(detail))
				Expect(backends.For(generation.DeviceCPU).Requests()).To(BeEmpty())
			},
			Entry("whitespace prompt", `{"prompt": "   "}`, "Prompt must not be empty."),
			Entry("empty prompt", `{"prompt": ""}`, "Prompt must not be empty."),
			Entry("missing prompt", `{}`, "prompt is required."),
			Entry("max_length not above prompt length", `{"prompt": "Once upon a time", "max_length": 4}`, "max_length must exceed prompt length."),
			Entry("max_length out of range", `{"prompt": "Hi", "max_length": 1001}`, "max_length must be greater than 0 and less than or equal to 1000."),
			Entry("temperature out of range", `{"prompt": "Hi", "temperature": 2.5}`, "temperature must be between 0.0 and 2.0."),
			Entry("top_k out of range", `{"prompt": "Hi", "top_k": -1}`, "top_k must be between 0 and 1000."),
			Entry("top_p out of range", `{"prompt": "Hi", "top_p": 1.5}`, "top_p must be between 0.0 and 1.0."),
			Entry("unknown device", `{"prompt": "Hi", "device": "tpu"}`, "device must be one of 'cpu', 'cuda', 'mps'."),
			Entry("uppercase device", `{"prompt": "Hi", "device": "CUDA"}`, "device must be one of 'cpu', 'cuda', 'mps'."),
			Entry("short max_length", `{"prompt": "Testing short max length", "max_length": 2}`, "max_length must exceed prompt length."),
			Entry("wrong type", `{"prompt": "Hi", "max_length": "ten"}`, "max_length must be an integer."),
			Entry("malformed JSON", `{"prompt": `, "Request body is not valid JSON."),
			Entry("non-object body", `["Hi"]`, "Request body must be a JSON object."),
			Entry("empty body", ``, "Request body must be a JSON object."),
		)

		It("rejects cuda when it is unavailable", func() {
			resp, body := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello", "device": "cuda"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(detailOf(body)).To(Equal("CUDA is not available but 'cuda' was requested."))
			Expect(backends.For(generation.DeviceCUDA).Requests()).To(BeEmpty())
		})

		It("rejects mps when it is unavailable", func() {
			resp, body := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello", "device": "mps"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(detailOf(body)).To(Equal("MPS is not available but 'mps' was requested."))
		})

		Context("when cuda is available", func() {
			BeforeEach(func() {
				prober = testutils.NewMockProber(generation.DeviceCUDA)
			})

			It("runs on the cuda backend", func() {
				resp, _ := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello", "device": "cuda"}`)
				Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
				Expect(backends.For(generation.DeviceCUDA).Requests()).To(HaveLen(1))
				Expect(backends.For(generation.DeviceCPU).Requests()).To(BeEmpty())
			})
		})

		It("returns a generic 500 when the backend fails", func() {
			backends.Configure = func(_ generation.Device, b *testutils.MockBackend) {
				b.Err = io.ErrUnexpectedEOF
			}
			server = newServer()

			resp, body := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
			Expect(body).To(MatchJSON(`{"detail": "Text generation failed."}`))
		})

		It("returns 504 when the request timeout passes", func() {
			backends.Configure = func(_ generation.Device, b *testutils.MockBackend) {
				b.Block = make(chan struct{})
			}
			server = newServer()

			resp, body := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello", "timeout": 0.05}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusGatewayTimeout))
			Expect(detailOf(body)).To(Equal("Generation timed out."))
		})

		It("publishes a completion event", func() {
			req, err := http.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"prompt": "Hello world", "max_length": 5, "do_sample": false}`))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set(fiber.HeaderXRequestID, "req-123")

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Source).To(Equal(eventstream.EventSource{
				Service:   "textgen",
				Surface:   "http",
				RequestID: "req-123",
			}))
			Expect(events[0].Generation.Device).To(Equal("cpu"))
			Expect(events[0].Generation.MaxLength).To(Equal(5))
			Expect(events[0].Generation.DoSample).To(BeFalse())
			Expect(events[0].Generation.PromptTokens).To(Equal(2))
			Expect(events[0].Generation.OutputTokens).To(Equal(5))
		})

		It("does not publish failed generations", func() {
			_, _ = doRequest(server, http.MethodPost, "/predict", `{"prompt": " "}`)
			Expect(publisher.Events()).To(BeEmpty())
		})
	})

	Describe("request ids", func() {
		It("assigns one when the caller does not", func() {
			resp, _ := doRequest(server, http.MethodGet, "/", "")
			Expect(resp.Header.Get(fiber.HeaderXRequestID)).To(HaveLen(36))
		})

		It("echoes the caller's id", func() {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set(fiber.HeaderXRequestID, "abc")

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Header.Get(fiber.HeaderXRequestID)).To(Equal("abc"))
		})
	})

	Describe("unknown routes", func() {
		It("renders fiber errors as detail", func() {
			resp, body := doRequest(server, http.MethodGet, "/nope", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
			Expect(detailOf(body)).To(Equal("Cannot GET /nope"))
		})
	})

	Describe("metrics", func() {
		It("counts requests by outcome", func() {
			_, _ = doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello"}`)
			_, _ = doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello", "device": "cuda"}`)
			_, _ = doRequest(server, http.MethodPost, "/predict", `{"prompt": ""}`)

			m := server.Metrics()
			Expect(testutil.ToFloat64(m.RequestsTotal.WithLabelValues("http", "cpu", "ok"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.RequestsTotal.WithLabelValues("http", "cuda", "device_unavailable"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.RequestsTotal.WithLabelValues("http", "none", "invalid_argument"))).To(Equal(1.0))
		})

		It("serves the registry on /metrics", func() {
			_, _ = doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello"}`)

			resp, body := doRequest(server, http.MethodGet, "/metrics", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body).To(ContainSubstring("textgen_requests_total"))
			Expect(body).To(ContainSubstring("textgen_tokens_total"))
		})
	})

	Describe("rate limiting", func() {
		BeforeEach(func() {
			config.RateLimit = 0.001
			config.RateBurst = 1
		})

		It("returns 429 once the bucket is empty", func() {
			resp, _ := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			resp, body := doRequest(server, http.MethodPost, "/predict", `{"prompt": "Hello"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusTooManyRequests))
			Expect(detailOf(body)).To(Equal("Rate limit exceeded."))
			Expect(testutil.ToFloat64(server.Metrics().RateLimited)).To(Equal(1.0))
		})

		It("leaves other routes alone", func() {
			for range 3 {
				resp, _ := doRequest(server, http.MethodGet, "/", "")
				Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			}
		})
	})

	Describe("MCP", func() {
		It("is not mounted by default", func() {
			resp, _ := doRequest(server, http.MethodGet, "/mcp", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		Context("when enabled", func() {
			BeforeEach(func() {
				config.MCPEnabled = true
			})

			It("mounts the MCP handler", func() {
				resp, _ := doRequest(server, http.MethodGet, "/mcp", "")
				Expect(resp.StatusCode).NotTo(Equal(fiber.StatusNotFound))
			})
		})
	})
})
