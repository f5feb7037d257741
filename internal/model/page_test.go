package model

import "testing"

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		number     int
		perPage    int
		total      int
		wantNumber int
		wantOffset int
		wantPages  int
	}{
		{"1ページ目", 1, 9, 20, 1, 0, 3},
		{"3ページ目", 3, 9, 20, 3, 18, 3},
		{"0ページは1ページ目として扱う", 0, 9, 0, 1, 0, 0},
		{"負のページ番号", -4, 9, 9, 1, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.number, tt.perPage)
			p.Total = tt.total

			if p.Number != tt.wantNumber {
				t.Errorf("Number = %d, want %d", p.Number, tt.wantNumber)
			}
			if got := p.Offset(); got != tt.wantOffset {
				t.Errorf("Offset() = %d, want %d", got, tt.wantOffset)
			}
			if got := p.TotalPages(); got != tt.wantPages {
				t.Errorf("TotalPages() = %d, want %d", got, tt.wantPages)
			}
		})
	}
}

func TestAPIError_ErrorIncludesSortedFields(t *testing.T) {
	v := ValidationErrors{}
	v.Add("title", MsgTooLong)
	v.Add("email", MsgBlank)
	v.Add("email", MsgInvalid)

	err := v.Err()
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	want := "[VALIDATION_FAILED] 入力内容に誤りがあります。 (email: can't be blank, is invalid; title: is too long)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationErrors_NoErrors(t *testing.T) {
	v := ValidationErrors{}
	if v.Any() {
		t.Error("Any() = true for empty errors")
	}
	if err := v.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestUser_RoleHelpers(t *testing.T) {
	var nilUser *User
	if nilUser.IsAdmin() || nilUser.CanManageOthers() {
		t.Error("nil user must not have privileges")
	}

	admin := &User{Role: RoleAdmin}
	editor := &User{Role: RoleEditor}
	writer := &User{Role: RoleWriter}

	if !admin.IsAdmin() || !admin.CanManageOthers() {
		t.Error("admin should be admin and manage others")
	}
	if editor.IsAdmin() || !editor.CanManageOthers() {
		t.Error("editor should manage others but not be admin")
	}
	if writer.IsAdmin() || writer.CanManageOthers() {
		t.Error("writer should have no elevated privileges")
	}
}
