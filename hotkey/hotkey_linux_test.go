//go:build linux

package hotkey

import "testing"

func TestComboFeed(t *testing.T) {
	type ev struct {
		code  uint16
		value int32
	}
	tests := []struct {
		name     string
		events   []ev
		wantDown int
		wantUp   int
	}{
		{"ctrl shift space", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 0}}, 1, 1},
		{"right modifiers", []ev{{keyRCtrl, 1}, {keyRShift, 1}, {keySpace, 1}, {keySpace, 0}}, 1, 1},
		{"space alone", []ev{{keySpace, 1}, {keySpace, 0}}, 0, 0},
		{"ctrl released first", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keyLCtrl, 0}, {keySpace, 1}}, 0, 0},
		{"autorepeat", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 2}, {keySpace, 2}, {keySpace, 0}}, 1, 1},
		{"modifier repeat keeps held", []ev{{keyLCtrl, 1}, {keyLCtrl, 2}, {keyLShift, 1}, {keySpace, 1}}, 1, 0},
		{"two presses", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 0}, {keySpace, 1}, {keySpace, 0}}, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c combo
			var downs, ups int
			for _, e := range tt.events {
				down, up := c.feed(e.code, e.value)
				if down {
					downs++
				}
				if up {
					ups++
				}
			}
			if downs != tt.wantDown || ups != tt.wantUp {
				t.Errorf("got %d down %d up, want %d down %d up", downs, ups, tt.wantDown, tt.wantUp)
			}
		})
	}
}
