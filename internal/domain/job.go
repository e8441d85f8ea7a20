package domain

import (
	"encoding/json"
	"time"
)

// Job represents a single trademark name-check request.
// It is immutable once published; ownership passes to the WorkEnvelope.
type Job struct {
	OwnerKey        string
	Name            string
	ProductCategory string
	ImageReference  string
	SubmittedAt     time.Time
}

// Envelope converts the job into its work-topic wire representation.
func (j Job) Envelope() WorkEnvelope {
	return WorkEnvelope{
		OwnerKey:        j.OwnerKey,
		Name:            j.Name,
		ProductCategory: j.ProductCategory,
		ImageReference:  j.ImageReference,
	}
}

// WorkEnvelope is the message published to the work topic.
// Field names follow the wire format the analysis workers already consume.
type WorkEnvelope struct {
	OwnerKey        string `json:"uid"`
	Name            string `json:"name"`
	ProductCategory string `json:"product_name"`
	ImageReference  string `json:"imageUrl"`
}

// ResultEnvelope is the message an analysis worker publishes to the result topic.
// Results is kept as raw bytes: it is stored and forwarded without interpretation.
type ResultEnvelope struct {
	WorkEnvelope
	Results json.RawMessage `json:"results"`
}

// Record is a persisted ResultEnvelope. Records are never mutated.
type Record struct {
	ID              int64           `json:"id"`
	OwnerKey        string          `json:"uid"`
	Name            string          `json:"name"`
	ProductCategory string          `json:"product_name"`
	ImageReference  string          `json:"imageUrl"`
	Results         json.RawMessage `json:"results"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// NewRecord builds the record for an inbound envelope stamped at createdAt.
func NewRecord(env ResultEnvelope, createdAt time.Time) Record {
	return Record{
		OwnerKey:        env.OwnerKey,
		Name:            env.Name,
		ProductCategory: env.ProductCategory,
		ImageReference:  env.ImageReference,
		Results:         env.Results,
		CreatedAt:       createdAt,
	}
}

// StatusProcessing is the acknowledgement status of an accepted job.
const StatusProcessing = "processing"

// Ack is returned synchronously once a job has been handed to the broker.
type Ack struct {
	Message        string `json:"message"`
	Status         string `json:"status"`
	ImageReference string `json:"imageUrl"`
}

// NoRecordsMessage is shown when an owner has no stored results.
const NoRecordsMessage = "no saved trademark results"

// History is the result of a history query.
type History struct {
	Records []Record
}

// Empty reports whether the owner has no stored results.
func (h History) Empty() bool { return len(h.Records) == 0 }

// Results is the shape produced by the analysis workers. The server never decodes
// it on the result path; it exists for producers (and the development worker).
type Results struct {
	FindSameName      CheckResult       `json:"find_same_name"`
	FindSimilarName   MatchResult       `json:"find_similar_name"`
	FindSimilarPronun MatchResult       `json:"find_similar_pronun"`
	Tokenize          TokenizeResult    `json:"tokenize"`
	CheckElastic      ConnotationResult `json:"check_elastic"`
	SimilarityScore   float64           `json:"similarity_score"`
}

// CheckResult is a boolean check with a human readable message.
type CheckResult struct {
	Result bool   `json:"result"`
	Msg    string `json:"msg"`
}

// MatchResult lists registered marks that resemble the candidate.
// Each row is a heterogeneous tuple, kept as raw JSON values.
type MatchResult struct {
	Result bool                `json:"result"`
	Data   [][]json.RawMessage `json:"data,omitempty"`
	Msg    string              `json:"msg,omitempty"`
}

// TokenizeResult holds the morphological tokens of the candidate name.
type TokenizeResult struct {
	Tokens []string `json:"tokens"`
}

// ConnotationResult reports tokens with a negative connotation.
type ConnotationResult struct {
	Result         bool             `json:"result"`
	NegativeTokens []TokenSentiment `json:"NegativeTokens"`
}

// TokenSentiment scores a single token.
type TokenSentiment struct {
	Name     string  `json:"name"`
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
}
