package domain

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestWorkflowStateValidate(t *testing.T) {
	source := &ImageAsset{ID: "img-1", MimeType: MimeTypePNG, SizeBytes: 10}
	result := &ImageAsset{ID: "img-2", MimeType: MimeTypePNG, SizeBytes: 12}
	style := &StylePreset{ID: "monet", Name: "Monet"}
	failure := &ErrorRecord{Kind: KindTransformFailed, Message: "boom", OccurredAt: time.Now()}

	valid := []WorkflowState{
		IdleState("s"),
		{Status: StatusAwaitingStyle, SourceImage: source},
		{Status: StatusProcessing, SourceImage: source, SelectedStyle: style},
		{Status: StatusComplete, SourceImage: source, SelectedStyle: style, ResultImage: result},
		{Status: StatusFailed, SourceImage: source, SelectedStyle: style, Error: failure},
	}
	for _, state := range valid {
		if err := state.Validate(); err != nil {
			t.Fatalf("expected %s state to be valid, got %v", state.Status, err)
		}
	}

	invalid := []WorkflowState{
		{Status: "bogus"},
		{Status: StatusAwaitingStyle},
		{Status: StatusIdle, SelectedStyle: style},
		{Status: StatusIdle, SourceImage: source},
		{Status: StatusProcessing, SourceImage: source},
		{Status: StatusProcessing, SourceImage: source, SelectedStyle: style, ResultImage: result},
		{Status: StatusComplete, SourceImage: source, SelectedStyle: style},
		{Status: StatusFailed, SourceImage: source, SelectedStyle: style},
		{Status: StatusAwaitingStyle, SourceImage: source, SelectedStyle: style},
		{Status: StatusAwaitingStyle, SourceImage: source, Error: failure},
	}
	for i, state := range invalid {
		if err := state.Validate(); err == nil {
			t.Fatalf("case %d: expected invariant violation for %+v", i, state)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := map[error]ErrorKind{
		nil: "",
		fmt.Errorf("ingest: %w", ErrUnsupportedFormat):       KindUnsupportedFormat,
		fmt.Errorf("ingest: %w", ErrFileTooLarge):            KindFileTooLarge,
		fmt.Errorf("%w: provider down", ErrTransformFailed):   KindTransformFailed,
		context.Canceled:                                      KindTransformCancelled,
		fmt.Errorf("select: %w: %q", ErrUnknownStyle, "nope"): KindUnknownStyle,
		ErrSessionNotFound:                                    KindSessionNotFound,
		fmt.Errorf("something else"):                          KindInternal,
	}
	for err, want := range cases {
		if got := KindOf(err); got != want {
			t.Fatalf("KindOf(%v): expected %q, got %q", err, want, got)
		}
	}
}

func TestNormalizeMimeType(t *testing.T) {
	if got := NormalizeMimeType(" Image/PNG; charset=binary "); got != MimeTypePNG {
		t.Fatalf("expected %s, got %s", MimeTypePNG, got)
	}
	if SupportedMimeType("image/gif") {
		t.Fatal("gif must not be supported")
	}
}

func TestImageAssetCloneAndDataURL(t *testing.T) {
	asset := ImageAsset{MimeType: MimeTypePNG, Data: []byte{1, 2, 3}}
	clone := asset.Clone()
	clone.Data[0] = 9
	if asset.Data[0] != 1 {
		t.Fatal("clone shares data with original")
	}
	if got := asset.DataURL(); got != "data:image/png;base64,AQID" {
		t.Fatalf("unexpected data url %s", got)
	}
}
