package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/civitas-labs/agora/pkg/models"
)

// validate is the shared validator instance. validator.Validate is
// thread-safe and caches struct metadata, so a single instance is reused.
// Field errors report JSON names so messages match the wire payload.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// JobDescriptor is the unit of work delivered by the job queue. All
// empty-string violations are rejected with a descriptive validation error
// before any stage runs.
type JobDescriptor struct {
	Config        ReportConfig  `json:"config" validate:"required"`
	Data          []RawComment  `json:"data" validate:"required,min=1,dive"`
	ReportDetails ReportDetails `json:"reportDetails" validate:"required"`
}

// ReportConfig carries the per-report execution configuration.
type ReportConfig struct {
	FirebaseDetails FirebaseDetails `json:"firebaseDetails" validate:"required"`
	LLM             LLMSpec         `json:"llm" validate:"required"`
	Instructions    Instructions    `json:"instructions" validate:"required"`
	Options         Options         `json:"options" validate:"required"`
	Env             EnvVars         `json:"env" validate:"required"`
}

// FirebaseDetails identifies the report and its owner.
type FirebaseDetails struct {
	ReportID string `json:"reportId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
}

// LLMSpec selects the model used by all stages.
type LLMSpec struct {
	Model string `json:"model" validate:"required"`
}

// Instructions are the per-stage prompt fragments. CruxInstructions is
// required only when cruxes are enabled (cross-field check in Validate).
type Instructions struct {
	SystemInstructions     string `json:"systemInstructions" validate:"required"`
	ClusteringInstructions string `json:"clusteringInstructions" validate:"required"`
	ExtractionInstructions string `json:"extractionInstructions" validate:"required"`
	DedupInstructions      string `json:"dedupInstructions" validate:"required"`
	SummariesInstructions  string `json:"summariesInstructions" validate:"required"`
	CruxInstructions       string `json:"cruxInstructions,omitempty"`
	OutputLanguage         string `json:"outputLanguage,omitempty"`
}

// Options are the per-report feature switches.
type Options struct {
	Cruxes bool `json:"cruxes"`

	// Bridging explicitly gates the bridging scorer. It is a hard switch,
	// not a report-layout hint.
	Bridging bool `json:"bridging,omitempty"`

	SortStrategy models.SortStrategy `json:"sortStrategy" validate:"required,oneof=numPeople numClaims"`
}

// EnvVars carries per-job secrets.
type EnvVars struct {
	OpenAIAPIKey string `json:"OPENAI_API_KEY" validate:"required"`
}

// RawComment is the canonical wire shape of one input comment:
// {id, comment, interview?}. It is converted exactly once, at ingress, into
// models.Comment.
type RawComment struct {
	ID        string `json:"id" validate:"required"`
	Comment   string `json:"comment" validate:"required"`
	Interview string `json:"interview,omitempty"`
}

// ReportDetails carries report presentation metadata.
type ReportDetails struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Question    string `json:"question" validate:"required"`
	Filename    string `json:"filename" validate:"required"`
}

// ParseJobDescriptor decodes and validates a descriptor payload.
func ParseJobDescriptor(data []byte) (*JobDescriptor, error) {
	var desc JobDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("malformed job descriptor: %w", err)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Validate checks the descriptor contract, producing field-addressed messages
// rather than raw validator output.
func (d *JobDescriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return fmt.Errorf("invalid job descriptor: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid job descriptor: %w", err)
	}
	if d.Config.Options.Cruxes && strings.TrimSpace(d.Config.Instructions.CruxInstructions) == "" {
		return fmt.Errorf("invalid job descriptor: config.instructions.cruxInstructions must not be empty when options.cruxes is true")
	}
	return nil
}

// ReportID is a convenience accessor for the report identifier.
func (d *JobDescriptor) ReportID() string {
	return d.Config.FirebaseDetails.ReportID
}

// Comments converts the raw data entries into the canonical comment shape.
// A missing interview attribution maps to the anonymous speaker constant.
func (d *JobDescriptor) Comments() []models.Comment {
	comments := make([]models.Comment, len(d.Data))
	for i, raw := range d.Data {
		speaker := strings.TrimSpace(raw.Interview)
		if speaker == "" {
			speaker = models.AnonymousSpeaker
		}
		comments[i] = models.Comment{
			ID:      raw.ID,
			Text:    raw.Comment,
			Speaker: speaker,
		}
	}
	return comments
}

// describeFieldError renders one validator error as a readable message using
// the JSON field path (e.g. "config.firebaseDetails.reportId").
func describeFieldError(fe validator.FieldError) string {
	path := jsonPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s must not be empty", path)
	case "min":
		return fmt.Sprintf("%s must contain at least %s entries", path, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", path, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", path, fe.Tag())
	}
}

// jsonPath strips the root struct name from a validator namespace like
// "JobDescriptor.config.firebaseDetails.reportId". Segments already carry
// JSON names via the registered tag name func.
func jsonPath(namespace string) string {
	if _, rest, found := strings.Cut(namespace, "."); found {
		return rest
	}
	return namespace
}
