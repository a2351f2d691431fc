package password

import (
	"strings"
	"testing"
)

// testParams はテスト高速化のための軽量パラメータ。
var testParams = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

// TestHash_Format は生成されるPHC文字列の形式を検証する。
func TestHash_Format(t *testing.T) {
	phc, err := Hash(testParams, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() returned error: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Errorf("Hash() = %q, expected PHC prefix with configured params", phc)
	}
	if got := strings.Count(phc, "$"); got != 5 {
		t.Errorf("Hash() = %q, expected 5 '$' separators, got %d", phc, got)
	}
}

// TestHash_EmptyPassword は空パスワードが拒否されることを検証する。
func TestHash_EmptyPassword(t *testing.T) {
	if _, err := Hash(testParams, ""); err == nil {
		t.Fatal("Hash(\"\") should have returned error")
	}
}

// TestHash_UniqueSalt は同じパスワードでも毎回異なるハッシュになることを検証する。
func TestHash_UniqueSalt(t *testing.T) {
	first, err := Hash(testParams, "secret-password-1")
	if err != nil {
		t.Fatalf("Hash() returned error: %v", err)
	}
	second, err := Hash(testParams, "secret-password-1")
	if err != nil {
		t.Fatalf("Hash() returned error: %v", err)
	}
	if first == second {
		t.Error("two hashes of the same password should differ (random salt)")
	}
}

// TestVerify は検証の成功と失敗の両方をテストする。
func TestVerify(t *testing.T) {
	phc, err := Hash(testParams, "Парол1234!")
	if err != nil {
		t.Fatalf("Hash() returned error: %v", err)
	}

	tests := []struct {
		name  string
		plain string
		phc   string
		want  bool
	}{
		{name: "正しいパスワード", plain: "Парол1234!", phc: phc, want: true},
		{name: "誤ったパスワード", plain: "wrong-password", phc: phc, want: false},
		{name: "空のパスワード", plain: "", phc: phc, want: false},
		{name: "空のハッシュ", plain: "Парол1234!", phc: "", want: false},
		{name: "不正な形式", plain: "Парол1234!", phc: "not-a-phc-string", want: false},
		{name: "別アルゴリズム", plain: "Парол1234!", phc: "$bcrypt$v=19$m=8192,t=1,p=1$AAAA$BBBB", want: false},
		{name: "不正なbase64ソルト", plain: "Парол1234!", phc: "$argon2id$v=19$m=8192,t=1,p=1$!!!$BBBB", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.plain, tt.phc); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestVerify_ParamsFromPHC は検証時にPHC文字列側のパラメータが使われることを検証する。
// パラメータを変更した後も既存ハッシュの検証が通ることを保証する。
func TestVerify_ParamsFromPHC(t *testing.T) {
	phc, err := Hash(Params{Memory: 16 * 1024, Time: 2, Parallelism: 1, KeyLen: 32}, "migrating-user")
	if err != nil {
		t.Fatalf("Hash() returned error: %v", err)
	}
	if !Verify("migrating-user", phc) {
		t.Error("Verify() should succeed using params embedded in the PHC string")
	}
}
