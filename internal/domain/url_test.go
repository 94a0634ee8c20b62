package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "absolute delivery path",
			path: "/data/geomet/weather/amqp/alerts/cap/20300601/CWTO/12/T_ONCN00_C_CWTO_203006011200_1234567890.cap",
			want: "https://dd.weather.gc.ca/alerts/cap/20300601/CWTO/12/T_ONCN00_C_CWTO_203006011200_1234567890.cap",
		},
		{
			name: "relative path outside the delivery directory",
			path: "alerts/cap/20300601/CWTO/12/a.cap",
			want: "https://dd.weather.gc.ca/alerts/cap/20300601/CWTO/12/a.cap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PublicURL("https://dd.weather.gc.ca/", "/data/geomet/weather", tt.path)
			assert.Equal(t, tt.want, got)
		})
	}
}
