package intent

import (
	"testing"
	"time"
)

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	in, err := Decode([]byte(`{"type":"event","description":"Dentista","datetime":"2025-06-05T12:00:00.000Z","notify":"15"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in.Type != TypeEvent || in.Description != "Dentista" {
		t.Errorf("unexpected intent: %+v", in)
	}
	want := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	if in.Datetime == nil || !in.Datetime.Equal(want) {
		t.Errorf("Datetime = %v, want %v", in.Datetime, want)
	}
	if in.Notify != 15 {
		t.Errorf("Notify = %d, want 15", in.Notify)
	}
}

func TestDecodeUpdateFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		json string
	}{
		{"nested", `{"type":"update","target":"event","itemIndex":1,"fields":{"description":"Novo","notify":0}}`},
		{"flattened", `{"type":"update","target":"event","itemIndex":"1","description":"Novo","notify":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in, err := Decode([]byte(tt.json))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if in.Target != TargetEvent || in.ItemIndex != 1 {
				t.Errorf("target/index = %s/%d", in.Target, in.ItemIndex)
			}
			if in.Fields.Description == nil || *in.Fields.Description != "Novo" {
				t.Errorf("Fields.Description = %v", in.Fields.Description)
			}
			if in.Fields.Notify == nil || *in.Fields.Notify != 0 {
				t.Errorf("Fields.Notify = %v, want 0", in.Fields.Notify)
			}
			if in.Fields.Datetime != nil {
				t.Errorf("Fields.Datetime = %v, want nil", in.Fields.Datetime)
			}
		})
	}
}

func TestDecodeBlankDescriptionIsUnset(t *testing.T) {
	t.Parallel()

	for _, js := range []string{
		`{"type":"update","target":"tasks","itemIndex":0,"fields":{"description":""}}`,
		`{"type":"update","target":"event","itemIndex":0,"description":"  "}`,
	} {
		in, err := Decode([]byte(js))
		if err != nil {
			t.Fatalf("Decode(%s): %v", js, err)
		}
		if in.Fields.Description != nil {
			t.Errorf("Decode(%s) Fields.Description = %q, want nil", js, *in.Fields.Description)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`not json`,
		`{"type":"event","datetime":"amanhã"}`,
		`{"type":"remove","itemIndex":"primeiro"}`,
	} {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Errorf("Decode(%s) expected error", raw)
		}
	}
}

func TestParseTimeNaiveIsUTC(t *testing.T) {
	t.Parallel()

	got, err := ParseTime("2025-06-05T09:30")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2025, 6, 5, 9, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("ParseTime = %v, want %v", got, want)
	}
}
