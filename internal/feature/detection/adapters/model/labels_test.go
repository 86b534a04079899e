package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		want    []string
		wantErr bool
	}{
		{name: "success: ordered by index", data: `{"1": "b", "0": "a", "2": "c"}`, want: []string{"a", "b", "c"}},
		{name: "success: original label file", data: appleLabels, want: []string{"Blotch_Apple", "Healthy_Apple", "Rot_Apple", "Scab_Apple"}},
		{name: "error: gap in indices", data: `{"0": "a", "2": "c"}`, wantErr: true},
		{name: "error: non numeric index", data: `{"zero": "a"}`, wantErr: true},
		{name: "error: negative index", data: `{"-1": "a"}`, wantErr: true},
		{name: "error: duplicate index spelling", data: `{"0": "a", "00": "b"}`, wantErr: true},
		{name: "error: empty name", data: `{"0": ""}`, wantErr: true},
		{name: "error: empty object", data: `{}`, wantErr: true},
		{name: "error: not json", data: `labels`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLabels([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
