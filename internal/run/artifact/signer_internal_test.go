package artifact

import "testing"

func TestCanonicalRequestLayout(t *testing.T) {
	headers := []Header{
		{Name: "Host", Value: "judgegate-runs.s3.amazonaws.com"},
		{Name: "X-Amz-Content-Sha256", Value: EmptyBodySHA256},
		{Name: "X-Amz-Date", Value: "20240305T070809Z"},
	}
	got, signed := canonicalRequest("/42/details.json", headers)

	want := "GET\n/42/details.json\n\n" +
		"host:judgegate-runs.s3.amazonaws.com\n" +
		"x-amz-content-sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855\n" +
		"x-amz-date:20240305T070809Z\n" +
		"\n" +
		"host;x-amz-content-sha256;x-amz-date\n" +
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("canonical request mismatch:\n%q\nwant\n%q", got, want)
	}
	if signed != "host;x-amz-content-sha256;x-amz-date" {
		t.Errorf("signed headers = %q", signed)
	}
	if h := hashHex([]byte(got)); h != "79c6745d3e866d59a6397ce5f4a68681e09bd8e27df0a9d59650218ceb674051" {
		t.Errorf("canonical hash = %s", h)
	}
}
