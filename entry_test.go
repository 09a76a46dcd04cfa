// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package teleimport

import (
	"testing"
)

func TestMediaTypeForMIME(t *testing.T) {
	for _, test := range []struct {
		mime string
		want MediaType
	}{
		{"image/jpeg", MediaPhoto},
		{"image/png", MediaPhoto},
		{"video/mp4", MediaVideo},
		{"audio/ogg", MediaAudio},
		{"application/pdf", MediaDocument},
		{"text/plain; charset=utf-8", MediaDocument},
		{"", MediaDocument},
	} {
		if got := MediaTypeForMIME(test.mime); got != test.want {
			t.Errorf("MediaTypeForMIME(%q) = %q, want %q", test.mime, got, test.want)
		}
	}
}
