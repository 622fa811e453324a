package rotation

import "testing"

func TestNewKeyIDBigEndianLow32Bits(t *testing.T) {
	cases := []struct {
		epoch int64
		want  KeyID
	}{
		{epoch: 0, want: KeyID{0, 0, 0, 0}},
		{epoch: 1, want: KeyID{0, 0, 0, 1}},
		{epoch: 256, want: KeyID{0, 0, 1, 0}},
		{epoch: 0x01020304, want: KeyID{0x01, 0x02, 0x03, 0x04}},
	}
	for _, c := range cases {
		if got := newKeyID(c.epoch); got != c.want {
			t.Errorf("newKeyID(%d) = %v, want %v", c.epoch, got, c.want)
		}
	}
}
