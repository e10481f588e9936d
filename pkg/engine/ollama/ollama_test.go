package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/textgen/pkg/engine"
	"github.com/papercomputeco/textgen/pkg/engine/ollama"
	"github.com/papercomputeco/textgen/pkg/generation"
)

var _ = Describe("Backend", func() {
	var (
		server   *httptest.Server
		received map[string]any
		status   int
		reply    string
	)

	BeforeEach(func() {
		received = nil
		status = http.StatusOK
		reply = `{"model":"gpt2","response":" there","done":true}`

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/api/generate"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
		DeferCleanup(server.Close)
	})

	newBackend := func(d generation.Device) *ollama.Backend {
		b, err := ollama.NewBackend(ollama.Config{BaseURL: server.URL + "/", Model: "gpt2"}, d)
		Expect(err).NotTo(HaveOccurred())
		return b
	}

	It("sends a raw, non-streaming completion", func() {
		b := newBackend(generation.DeviceCPU)
		resp, err := b.Generate(context.Background(), &engine.BackendRequest{
			Prompt:      "Hello",
			NewTokens:   9,
			Temperature: 0.7,
			TopK:        40,
			TopP:        0.9,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal(" there"))
		Expect(resp.Tokens).To(BeNil())

		Expect(received["model"]).To(Equal("gpt2"))
		Expect(received["prompt"]).To(Equal("Hello"))
		Expect(received["raw"]).To(BeTrue())
		Expect(received["stream"]).To(BeFalse())

		opts := received["options"].(map[string]any)
		Expect(opts["num_predict"]).To(BeNumerically("==", 9))
		Expect(opts["temperature"]).To(BeNumerically("==", 0.7))
		Expect(opts["top_k"]).To(BeNumerically("==", 40))
		Expect(opts["top_p"]).To(BeNumerically("==", 0.9))
		Expect(opts["num_gpu"]).To(BeNumerically("==", 0))
		Expect(opts).NotTo(HaveKey("seed"))
	})

	It("decodes greedily with a fixed seed", func() {
		seed := 0
		b := newBackend(generation.DeviceCPU)
		_, err := b.Generate(context.Background(), &engine.BackendRequest{
			Prompt:      "Hello",
			NewTokens:   5,
			Temperature: 1.2,
			TopK:        50,
			TopP:        1,
			Greedy:      true,
			Seed:        &seed,
		})
		Expect(err).NotTo(HaveOccurred())

		opts := received["options"].(map[string]any)
		Expect(opts["temperature"]).To(BeNumerically("==", 0))
		Expect(opts["top_k"]).To(BeNumerically("==", 1))
		Expect(opts["seed"]).To(BeNumerically("==", 0))
		Expect(opts).NotTo(HaveKey("top_p"))
	})

	It("lets accelerators choose their own offload", func() {
		b := newBackend(generation.DeviceCUDA)
		_, err := b.Generate(context.Background(), &engine.BackendRequest{Prompt: "Hello", NewTokens: 1})
		Expect(err).NotTo(HaveOccurred())

		opts := received["options"].(map[string]any)
		Expect(opts).NotTo(HaveKey("num_gpu"))
	})

	It("reports Ollama error bodies", func() {
		status = http.StatusNotFound
		reply = `{"error":"model 'gpt2' not found"}`

		b := newBackend(generation.DeviceCPU)
		_, err := b.Generate(context.Background(), &engine.BackendRequest{Prompt: "Hello", NewTokens: 1})
		Expect(err).To(MatchError("ollama returned status 404: model 'gpt2' not found"))
	})

	It("reports undecodable responses", func() {
		reply = `not json`

		b := newBackend(generation.DeviceCPU)
		_, err := b.Generate(context.Background(), &engine.BackendRequest{Prompt: "Hello", NewTokens: 1})
		Expect(err).To(MatchError(ContainSubstring("decoding response")))
	})

	It("honors context cancellation", func() {
		slow := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		DeferCleanup(slow.Close)

		b, err := ollama.NewBackend(ollama.Config{BaseURL: slow.URL}, generation.DeviceCPU)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err = b.Generate(ctx, &engine.BackendRequest{Prompt: "Hello", NewTokens: 1})
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("closes cleanly", func() {
		Expect(newBackend(generation.DeviceCPU).Close()).To(Succeed())
	})
})
