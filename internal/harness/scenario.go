package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/govpoll/internal/gov"
	"github.com/roach88/govpoll/internal/testutil"
)

// Scenario is one offline lifecycle run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the initial clock reading. Zero uses DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	Config ScenarioConfig `yaml:"config,omitempty"`

	// Summary is the canned reply of the text generator.
	Summary string `yaml:"summary,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig holds the engine settings a scenario may override.
type ScenarioConfig struct {
	InitialBlockTime    *int64 `yaml:"initial_block_time,omitempty"`
	PollDurationMinutes int    `yaml:"poll_duration_minutes,omitempty"`
	FeedBaseURL         string `yaml:"feed_base_url,omitempty"`
}

// FeedRecord describes one raw proposal served by the scripted feed. A
// missing block_time or an empty tx_hash leaves the field out of the record.
type FeedRecord struct {
	TxHash    string         `yaml:"tx_hash"`
	Index     int64          `yaml:"index"`
	BlockTime *int64         `yaml:"block_time,omitempty"`
	Title     string         `yaml:"title,omitempty"`
	Fields    map[string]any `yaml:"fields,omitempty"`
}

// Raw renders the record the way the indexer would.
func (f FeedRecord) Raw() gov.Raw {
	raw := testutil.Proposal(f.TxHash, f.Index, 0)
	if f.TxHash == "" {
		delete(raw, "proposal_tx_hash")
	}
	if f.BlockTime == nil {
		delete(raw, "block_time")
	} else {
		raw["block_time"] = *f.BlockTime
	}
	if f.Title != "" {
		raw["title"] = f.Title
	}
	for k, v := range f.Fields {
		raw[k] = v
	}
	return raw
}

// Step is one scenario action. Which fields apply depends on Action.
type Step struct {
	Action    string         `yaml:"action"`
	GAID      string         `yaml:"gaid,omitempty"`
	Proposals []FeedRecord   `yaml:"proposals,omitempty"`
	Votes     map[string]int `yaml:"votes,omitempty"`
	Author    string         `yaml:"author,omitempty"`
	Text      string         `yaml:"text,omitempty"`
	Bot       bool           `yaml:"bot,omitempty"`
	Duration  string         `yaml:"duration,omitempty"`
	Op        string         `yaml:"op,omitempty"`
	Error     string         `yaml:"error,omitempty"`

	// Expect maps item statuses to their expected count in a check or
	// collect report. Unlisted statuses are not checked.
	Expect map[string]int `yaml:"expect,omitempty"`
}

// Step actions.
const (
	ActionFeed           = "feed"
	ActionFeedError      = "feed_error"
	ActionCheck          = "check"
	ActionCollect        = "collect"
	ActionAdvance        = "advance"
	ActionVote           = "vote"
	ActionComment        = "comment"
	ActionFail           = "fail"
	ActionDeleteThread   = "delete_thread"
	ActionGeneratorError = "generator_error"
)

// Assertion validates the final store, platform or trace.
type Assertion struct {
	Type   string         `yaml:"type"`
	GAID   string         `yaml:"gaid,omitempty"`
	Action string         `yaml:"action,omitempty"`
	Status string         `yaml:"status,omitempty"`
	Reason string         `yaml:"reason,omitempty"`
	Count  *int           `yaml:"count,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertProposal       = "proposal"
	AssertAbsent         = "absent"
	AssertProposalCount  = "proposal_count"
	AssertRationaleCount = "rationale_count"
	AssertThreadCount    = "thread_count"
	AssertTraceContains  = "trace_contains"
)

var chatOps = []string{
	testutil.OpCreateThread,
	testutil.OpPostMessage,
	testutil.OpCreatePoll,
	testutil.OpPollCounts,
	testutil.OpHistory,
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch step.Action {
	case ActionFeed, ActionFeedError, ActionCheck, ActionCollect, ActionGeneratorError:
	case ActionAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("steps[%d]: invalid duration %q", i, step.Duration)
		}
	case ActionVote:
		if step.GAID == "" {
			return fmt.Errorf("steps[%d]: gaid is required for vote", i)
		}
		for label := range step.Votes {
			if _, err := gov.ParseOption(label); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		}
	case ActionComment:
		if step.GAID == "" || step.Author == "" {
			return fmt.Errorf("steps[%d]: gaid and author are required for comment", i)
		}
	case ActionDeleteThread:
		if step.GAID == "" {
			return fmt.Errorf("steps[%d]: gaid is required for delete_thread", i)
		}
	case ActionFail:
		if !slices.Contains(chatOps, step.Op) {
			return fmt.Errorf("steps[%d]: unknown chat operation %q", i, step.Op)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
	}

	if step.Expect != nil && step.Action != ActionCheck && step.Action != ActionCollect {
		return fmt.Errorf("steps[%d]: expect is only valid for check and collect", i)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertProposal:
		if a.GAID == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: gaid and expect are required for proposal", i)
		}
	case AssertAbsent:
		if a.GAID == "" {
			return fmt.Errorf("assertions[%d]: gaid is required for absent", i)
		}
	case AssertProposalCount, AssertThreadCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", i, a.Type)
		}
	case AssertRationaleCount:
		if a.GAID == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: gaid and count are required for rationale_count", i)
		}
	case AssertTraceContains:
		if a.Action == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: action and status are required for trace_contains", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	if a.Count != nil && *a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", i)
	}
	return nil
}
