package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
	"github.com/joseph-ayodele/billing-parser/internal/pipeline"
)

type fileInput struct {
	Kind      string `json:"kind"`
	MediaType string `json:"mediaType"`
	Data      string `json:"data"`
	URL       string `json:"url"`
	Name      string `json:"name"`
}

type parseRequest struct {
	Files     []fileInput `json:"files"`
	StepBound int         `json:"stepBound"`
	Verbose   *bool       `json:"verbose"`
	Steps     []string    `json:"steps"`
}

func decodeRequest(in *structpb.Struct) (parseRequest, error) {
	var pr parseRequest
	if in == nil {
		return pr, fmt.Errorf("empty request")
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return pr, err
	}
	err = json.Unmarshal(b, &pr)
	return pr, err
}

// fileRefs decodes inline data: raw text for kind=text, base64 otherwise.
func (pr parseRequest) fileRefs() ([]entity.FileRef, error) {
	refs := make([]entity.FileRef, 0, len(pr.Files))
	for i, f := range pr.Files {
		ref := entity.FileRef{Kind: constants.FileKind(f.Kind), MediaType: f.MediaType, URL: f.URL, Name: f.Name}
		if f.Data != "" {
			if ref.Kind == constants.FileKindText {
				ref.Data = []byte(f.Data)
			} else {
				b, err := base64.StdEncoding.DecodeString(f.Data)
				if err != nil {
					return nil, fmt.Errorf("files[%d].data: %w", i, err)
				}
				ref.Data = b
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (pr parseRequest) proposer() pipeline.Proposer {
	stages := make([]constants.Stage, len(pr.Steps))
	for i, s := range pr.Steps {
		stages[i] = constants.Stage(s)
	}
	return pipeline.NewSequenceProposer(stages...)
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, err
	}
	return s, nil
}

func eventFrame(ev events.ToolEvent) (*structpb.Struct, error) {
	return toStruct(map[string]any{"type": "event", "event": ev})
}

func partialFrame(snap pipeline.Snapshot) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"type":      "partial",
		"status":    "streaming",
		"runId":     snap.RunID,
		"state":     snap.State,
		"step":      snap.Steps,
		"completed": snap.Completed,
		"document":  snap.Partial(),
	})
}

func finalFrame(out pipeline.Outcome) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"type":     "final",
		"status":   "done",
		"runId":    out.RunID.String(),
		"steps":    out.Steps,
		"document": out.Payload,
	})
}
