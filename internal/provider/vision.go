package provider

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/telemetry"
)

const visionSystemPrompt = "You analyze a desktop screenshot and return UI click targets " +
	"as JSON. Output only JSON with fields: targets (list of {x:int, y:int, label:str, " +
	"confidence:float}), and optional notes. Coordinates must be absolute pixel positions " +
	"in the screenshot. Be conservative: if ambiguous or low confidence, return an empty list."

// locateCacheSize bounds the screenshot-keyed result cache. Entries
// are recycled FIFO; the cache only needs to cover the retries of the
// verification loop, where identical frames recur.
const locateCacheSize = 64

// VisionModel wraps a completion client with the target-location
// contract used by the GUI verification loop.
type VisionModel struct {
	client Client
	logger *log.Logger

	mu    sync.Mutex
	cache map[[32]byte][]Target
	order [][32]byte
}

// NewVisionModel builds the vision collaborator.
func NewVisionModel(client Client, logger *log.Logger) *VisionModel {
	return &VisionModel{
		client: client,
		logger: logger,
		cache:  make(map[[32]byte][]Target, locateCacheSize),
	}
}

// Locate asks the vision model for click targets matching the
// instruction in the screenshot. The temperature is chosen by the
// caller; the verification loop raises it across retries to shake a
// stuck model out of the same answer. Identical frame, instruction and
// temperature triples are served from cache, so re-verification of an
// unchanged screen costs no inference.
func (m *VisionModel) Locate(ctx context.Context, screenshot []byte, instruction string, temperature float64) ([]Target, error) {
	key := locateKey(screenshot, instruction, temperature)

	m.mu.Lock()
	cached, ok := m.cache[key]
	m.mu.Unlock()
	if ok {
		m.logger.Debug("vision locate served from cache", "instruction", instruction)
		return cached, nil
	}

	ctx, span := telemetry.StartProviderSpan(ctx, m.client.Name(), "locate")
	defer span.End()

	resp, err := m.client.Complete(ctx, &CompletionRequest{
		System:      visionSystemPrompt,
		Prompt:      "Instruction: " + instruction + "\nReturn JSON with fields: targets (list of {x, y, label, confidence}), and optional notes.",
		Images:      [][]byte{screenshot},
		MaxTokens:   256,
		Temperature: temperature,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	targets, parseErr := ParseTargets(resp.Content)
	if parseErr != nil {
		err := errors.NewMalformedModelOutputError(m.client.Name(), parseErr)
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)

	m.store(key, targets)
	return targets, nil
}

func (m *VisionModel) store(key [32]byte, targets []Target) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cache[key]; exists {
		return
	}
	if len(m.order) >= locateCacheSize {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.cache, oldest)
	}
	m.cache[key] = targets
	m.order = append(m.order, key)
}

func locateKey(screenshot []byte, instruction string, temperature float64) [32]byte {
	h := blake3.New()
	h.Write(screenshot)
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(instruction))))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(temperature, 'f', 2, 64)))
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// Health implements the collaborator health probe.
func (m *VisionModel) Health(ctx context.Context) error {
	return m.client.Health(ctx)
}

// Name identifies the underlying collaborator.
func (m *VisionModel) Name() string {
	return m.client.Name()
}
