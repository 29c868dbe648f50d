package vault

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testToken = "123456789:AAE-abcdefghijklmnopqrstuvwxyz_0123"

func newVault(t *testing.T) (*Vault, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.enc")
	v, err := Create("pass", path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return v, path
}

func readFile(t *testing.T, path string) vaultFile {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var f vaultFile
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return f
}

func TestCreate_newVault(t *testing.T) {
	_, path := newVault(t)

	f := readFile(t, path)
	if f.Version != fileVersion || f.Salt == "" || f.Check == "" {
		t.Fatalf("file = %+v", f)
	}
	if len(f.Entries) != 0 {
		t.Fatalf("expected empty entries, got %d", len(f.Entries))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != vaultFilePerm {
		t.Fatalf("permissions = %o, want %o", info.Mode().Perm(), vaultFilePerm)
	}
}

func TestCreate_saveError(t *testing.T) {
	orig := atomicWrite
	atomicWrite = func(string, []byte, os.FileMode) error {
		return errors.New("injected write error")
	}
	t.Cleanup(func() { atomicWrite = orig })

	_, err := Create("pass", filepath.Join(t.TempDir(), "vault.enc"))
	if err == nil || !strings.Contains(err.Error(), "create") {
		t.Fatalf("expected create error, got: %v", err)
	}
}

func TestCreate_saltError(t *testing.T) {
	orig := randRead
	randRead = func([]byte) (int, error) { return 0, errors.New("injected rand error") }
	t.Cleanup(func() { randRead = orig })

	if _, err := Create("pass", filepath.Join(t.TempDir(), "vault.enc")); err == nil {
		t.Fatal("expected error when salt generation fails")
	}
}

func TestOpen_existingVault(t *testing.T) {
	v, path := newVault(t)
	if err := v.Set(KeyBotToken, testToken); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	v2, err := Open("pass", path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	val, err := v2.Get(KeyBotToken)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != testToken {
		t.Fatalf("got %q, want %q", val, testToken)
	}
}

func TestOpen_wrongPassphrase(t *testing.T) {
	_, path := newVault(t)
	if _, err := Open("wrong", path); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("error = %v, want ErrWrongPassphrase", err)
	}
}

func TestOpen_errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid json", "not-json{", "unmarshal"},
		{"unsupported version", `{"version": 7}`, "unsupported file version"},
		{"invalid salt", `{"version": 1, "salt": "!!!", "check": ""}`, "decode salt"},
		{"invalid check", `{"version": 1, "salt": "MTIzNDU2Nzg5MDEyMzQ1Ng==", "check": "!!!"}`, "decode check"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vault.enc")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Open("pass", path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestOpen_invalidEntryBase64(t *testing.T) {
	_, path := newVault(t)
	f := readFile(t, path)
	f.Entries = map[string]string{"broken": "!!!not-base64"}
	data, _ := json.Marshal(f)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Open("pass", path)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected decode entry error, got: %v", err)
	}
}

func TestOpen_nonExistentFile(t *testing.T) {
	_, err := Open("pass", "/nonexistent/path/vault.enc")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want os.ErrNotExist", err)
	}
}

func TestOpenOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.enc")
	v, err := OpenOrCreate("pass", path)
	if err != nil {
		t.Fatalf("OpenOrCreate (create): %v", err)
	}
	if err := v.Set("note", "x"); err != nil {
		t.Fatal(err)
	}

	v2, err := OpenOrCreate("pass", path)
	if err != nil {
		t.Fatalf("OpenOrCreate (open): %v", err)
	}
	if diff := cmp.Diff([]string{"note"}, v2.List()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if _, err := OpenOrCreate("wrong", path); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("error = %v, want ErrWrongPassphrase", err)
	}
}

func TestVault_Set_validation(t *testing.T) {
	v, _ := newVault(t)
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
	}{
		{"valid token", KeyBotToken, testToken, false},
		{"token without colon", KeyBotToken, "123456789AAE-abcdefghijklmnopqrstuvwxyz", true},
		{"token with short secret", KeyBotToken, "123:abc", true},
		{"valid webhook secret", KeyWebhookSecret, "s3cret_-TOKEN", false},
		{"webhook secret with space", KeyWebhookSecret, "bad secret", true},
		{"empty key", "", "x", true},
		{"free-form entry", "note", "anything goes here", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Set(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if err := v.Set(KeyBotToken, "nope"); !errors.Is(err, ErrInvalidBotToken) {
		t.Errorf("error = %v, want ErrInvalidBotToken", err)
	}
}

func TestVault_SetOverwrite(t *testing.T) {
	v, _ := newVault(t)
	if err := v.Set("note", "first"); err != nil {
		t.Fatal(err)
	}
	if err := v.Set("note", "second"); err != nil {
		t.Fatal(err)
	}
	got, err := v.Get("note")
	if err != nil {
		t.Fatal(err)
	}
	if got != "second" {
		t.Fatalf("got %q, want %q", got, "second")
	}
}

func TestVault_Set_saveError(t *testing.T) {
	v, _ := newVault(t)
	if err := v.Set("kept", "old"); err != nil {
		t.Fatal(err)
	}

	orig := atomicWrite
	atomicWrite = func(string, []byte, os.FileMode) error {
		return errors.New("injected write error")
	}
	t.Cleanup(func() { atomicWrite = orig })

	if err := v.Set("new", "value"); err == nil {
		t.Fatal("expected error when save fails")
	}
	if _, err := v.Get("new"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("new key should be rolled back, got: %v", err)
	}
	if err := v.Set("kept", "changed"); err == nil {
		t.Fatal("expected error when save fails")
	}
	if got, _ := v.Get("kept"); got != "old" {
		t.Fatalf("overwrite should be rolled back, got %q", got)
	}
}

func TestVault_Get_notFound(t *testing.T) {
	v, _ := newVault(t)
	if _, err := v.Get("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("error = %v, want ErrKeyNotFound", err)
	}
}

func TestVault_Get_decryptError(t *testing.T) {
	v, _ := newVault(t)
	v.entries["corrupt"] = []byte("not-a-valid-ciphertext-at-all-xx")
	if _, err := v.Get("corrupt"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("error = %v, want ErrDecrypt", err)
	}
}

func TestVault_Delete(t *testing.T) {
	v, path := newVault(t)
	if err := v.Set(KeyWebhookSecret, "abc"); err != nil {
		t.Fatal(err)
	}
	if err := v.Delete(KeyWebhookSecret); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := v.Delete(KeyWebhookSecret); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("second delete error = %v, want ErrKeyNotFound", err)
	}
	if f := readFile(t, path); len(f.Entries) != 0 {
		t.Fatalf("entries on disk = %v, want none", f.Entries)
	}
}

func TestVault_Delete_saveError(t *testing.T) {
	v, _ := newVault(t)
	if err := v.Set("note", "x"); err != nil {
		t.Fatal(err)
	}
	orig := atomicWrite
	atomicWrite = func(string, []byte, os.FileMode) error {
		return errors.New("injected write error")
	}
	t.Cleanup(func() { atomicWrite = orig })

	if err := v.Delete("note"); err == nil {
		t.Fatal("expected error when save fails")
	}
	if got, err := v.Get("note"); err != nil || got != "x" {
		t.Fatalf("delete should be rolled back, got %q, %v", got, err)
	}
}

func TestVault_save_marshalError(t *testing.T) {
	v, _ := newVault(t)
	orig := jsonMarshalIndent
	jsonMarshalIndent = func(any, string, string) ([]byte, error) {
		return nil, errors.New("injected marshal error")
	}
	t.Cleanup(func() { jsonMarshalIndent = orig })

	err := v.Set("note", "x")
	if err == nil || !strings.Contains(err.Error(), "marshal") {
		t.Fatalf("expected marshal error, got: %v", err)
	}
}

func TestVault_List(t *testing.T) {
	v, _ := newVault(t)
	for _, k := range []string{"zeta", KeyWebhookSecret, "alpha"} {
		val := "v"
		if err := v.Set(k, val); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"alpha", KeyWebhookSecret, "zeta"}
	if diff := cmp.Diff(want, v.List()); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestVault_concurrentAccess(t *testing.T) {
	v, _ := newVault(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = v.Set("note", "value")
			_, _ = v.Get("note")
			_ = v.List()
		}()
	}
	wg.Wait()
	if got, _ := v.Get("note"); got != "value" {
		t.Fatalf("got %q, want value", got)
	}
}

func TestSecret(t *testing.T) {
	v, _ := newVault(t)
	if err := v.Set(KeyBotToken, testToken); err != nil {
		t.Fatal(err)
	}

	t.Run("vault value", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		got, err := Secret(v, KeyBotToken, "BOT_TOKEN")
		if err != nil || got != testToken {
			t.Fatalf("Secret = %q, %v", got, err)
		}
	})

	t.Run("env wins", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "42:from-env")
		got, err := Secret(v, KeyBotToken, "BOT_TOKEN")
		if err != nil || got != "42:from-env" {
			t.Fatalf("Secret = %q, %v", got, err)
		}
	})

	t.Run("no vault", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		_, err := Secret(nil, KeyBotToken, "BOT_TOKEN")
		if !errors.Is(err, ErrKeyNotFound) || !strings.Contains(err.Error(), "BOT_TOKEN") {
			t.Fatalf("error = %v, want ErrKeyNotFound naming BOT_TOKEN", err)
		}
	})
}
