//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/cloo-solutions/quotedesk/internal/api/handlers"
	"github.com/cloo-solutions/quotedesk/internal/cli/client"
	"github.com/cloo-solutions/quotedesk/internal/generation"
	"github.com/cloo-solutions/quotedesk/internal/ingest"
	"github.com/cloo-solutions/quotedesk/internal/repository"
	"github.com/cloo-solutions/quotedesk/internal/server"
	"github.com/cloo-solutions/quotedesk/internal/service"
	"github.com/cloo-solutions/quotedesk/internal/storage"
	"github.com/cloo-solutions/quotedesk/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const embeddingDimensions = 768

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	S3Client     *storage.S3Client
	ServerURL    string
	ServerCloser func()
	Client       *client.APIClient
	Generator    *cannedProvider
}

// SetupE2EEnv starts Postgres and RustFS and serves the carrier assistant
// backed by pgvector search.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSCredential,
		SecretAccessKey: testutil.RustFSCredential,
		Bucket:          "guidelines",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, s3Client.EnsureBucket(ctx))

	port, err := getFreePort()
	require.NoError(t, err)

	generator := &cannedProvider{text: "Answer: Yes\nConditions:\n- Roof must be under 15 years old [#1]"}
	serverURL, serverCloser := startServer(t, pool, generator, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		S3Client:     s3Client,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		Client:       client.NewAPIClientWithConfig(serverURL, 30*time.Second),
		Generator:    generator,
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Upload puts a guideline document into the bucket.
func (e *E2ETestEnv) Upload(key, body string) {
	require.NoError(e.T, e.S3Client.PutObject(e.Ctx, key, []byte(body), "text/plain"))
}

// Ingest runs one ingestion pass over the bucket.
func (e *E2ETestEnv) Ingest(force bool) *service.IngestReport {
	svc := service.NewIngestService(
		ingest.NewBucketSource(e.S3Client, ""),
		wordEmbedder{},
		repository.NewDocumentRepository(e.Pool),
		repository.NewTxRunner(e.Pool),
		service.IngestConfig{Chunking: service.DefaultChunkConfig(), EmbedConcurrency: 2},
	)
	report, err := svc.Run(e.Ctx, service.IngestOptions{Force: force})
	require.NoError(e.T, err)
	return report
}

func startServer(t *testing.T, pool *pgxpool.Pool, generator *cannedProvider, port int) (string, func()) {
	chunks := repository.NewChunkRepository(pool)
	chain := generation.NewChain(nil, nil, generator, generation.DefaultConfig())
	assistant := service.NewCarrierAssistantService(wordEmbedder{}, chunks, chunks, chain, service.DefaultPipelineConfig())

	router := server.NewRouter(server.RouterConfig{
		CarrierAssistantHandler: handlers.NewCarrierAssistantHandler(assistant),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	c := client.NewAPIClientWithConfig(url, time.Second)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := c.Health(context.Background()); err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// wordEmbedder hashes words into a bag-of-words vector so that texts sharing
// vocabulary land close together.
type wordEmbedder struct{}

func (wordEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, embeddingDimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%embeddingDimensions]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v, nil
}

// cannedProvider is a local model stand-in that records the prompts it saw.
type cannedProvider struct {
	text string

	mu      sync.Mutex
	prompts []string
}

func (p *cannedProvider) Name() string { return "canned" }

func (p *cannedProvider) Complete(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	return p.text, nil
}

// Prompts returns the prompts received so far.
func (p *cannedProvider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}
