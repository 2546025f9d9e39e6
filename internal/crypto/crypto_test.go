package crypto

import (
	"testing"

	"github.com/gluk-w/claworc/webssh/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test DB: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	database.DB = db
	ResetKeyCache()
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		database.DB = nil
		ResetKeyCache()
	})
}

func TestEncryptDecrypt(t *testing.T) {
	setupTestDB(t)

	tok, err := Encrypt([]byte("session output"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if tok == "session output" {
		t.Fatal("token equals plaintext")
	}

	// Force the key to come from the database.
	ResetKeyCache()

	got, err := Decrypt(tok)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != "session output" {
		t.Errorf("Decrypt = %q", got)
	}
}

func TestDecrypt_Empty(t *testing.T) {
	got, err := Decrypt("")
	if err != nil || got != nil {
		t.Errorf("Decrypt(\"\") = %q, %v", got, err)
	}
}

func TestDecrypt_InvalidToken(t *testing.T) {
	setupTestDB(t)
	if _, err := Decrypt("not-a-token"); err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestMask(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"abc", "****"},
		{"supersecret", "****cret"},
		{"administrador-ñandú", "****andú"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
