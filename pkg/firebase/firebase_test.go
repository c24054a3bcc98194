package firebase

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestInitFirebaseRequiresCredentials(t *testing.T) {
	_, err := InitFirebase(context.Background(), "", zap.NewNop())
	assert.ErrorContains(t, err, "credentials path not provided")

	missing := filepath.Join(t.TempDir(), "missing.json")
	_, err = InitFirebase(context.Background(), missing, zap.NewNop())
	assert.ErrorContains(t, err, "not found")
}
