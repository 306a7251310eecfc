package decode

import (
	"errors"
	"strings"
	"testing"
)

const multipartQP = "From: SMGMailMgr@whysmg.com\r\n" +
	"Subject: CEM Digest\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Fast Service: 85%\r\n" +
	"Taste: 9=\r\n" +
	"1%\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>html</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Disposition: attachment; filename=\"scores.txt\"\r\n" +
	"\r\n" +
	"attachment text\r\n" +
	"--outer--\r\n"

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "nested multipart quoted-printable",
			raw:  multipartQP,
			want: "Fast Service: 85%\r\nTaste: 91%",
		},
		{
			name: "single part base64",
			raw: "Subject: OOS\r\n" +
				"Content-Type: text/plain; charset=utf-8\r\n" +
				"Content-Transfer-Encoding: base64\r\n" +
				"\r\n" +
				"SXRlbSAjMTAwMjM0IFNhdWNl\r\n",
			want: "Item #100234 Sauce",
		},
		{
			name: "single part without content type",
			raw:  "Subject: Allocation Notification\n\nItem #55 Buns\n",
			want: "Item #55 Buns\n",
		},
		{
			name: "latin-1 charset",
			raw: "Subject: x\r\n" +
				"Content-Type: text/plain; charset=iso-8859-1\r\n" +
				"Content-Transfer-Encoding: quoted-printable\r\n" +
				"\r\n" +
				"Caf=E9",
			want: "Café",
		},
		{
			name: "attachment only",
			raw: "Subject: x\r\n" +
				"Content-Type: multipart/mixed; boundary=b\r\n" +
				"\r\n" +
				"--b\r\n" +
				"Content-Type: text/plain\r\n" +
				"Content-Disposition: attachment; filename=a.txt\r\n" +
				"\r\n" +
				"data\r\n" +
				"--b--\r\n",
			wantErr: ErrEmptyBody,
		},
		{
			name: "html only multipart",
			raw: "Subject: x\r\n" +
				"Content-Type: multipart/alternative; boundary=b\r\n" +
				"\r\n" +
				"--b\r\n" +
				"Content-Type: text/html\r\n" +
				"\r\n" +
				"<p>hi</p>\r\n" +
				"--b--\r\n",
			wantErr: ErrEmptyBody,
		},
		{
			name:    "empty body",
			raw:     "Subject: x\r\n\r\n",
			wantErr: ErrEmptyBody,
		},
		{
			name:    "no bytes",
			raw:     "",
			wantErr: ErrEmptyBody,
		},
		{
			name: "binary single part",
			raw: "Subject: x\r\n" +
				"Content-Type: application/pdf\r\n" +
				"\r\n" +
				"%PDF-1.4",
			wantErr: ErrEmptyBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			want := strings.ReplaceAll(tt.want, "\r\n", "\n")
			if strings.TrimSpace(got) != strings.TrimSpace(want) {
				t.Errorf("Resolve() = %q, want %q", got, want)
			}
		})
	}
}

func TestResolveMalformedHeader(t *testing.T) {
	if _, err := Resolve([]byte("this is not a mail header\n\nbody")); err == nil {
		t.Fatal("Resolve() expected an error for a malformed header")
	}
}
