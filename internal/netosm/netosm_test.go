package netosm

import (
	"testing"

	"github.com/paulmach/osm"
)

func TestIsBusAccessible(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{
			name: "residential road",
			tags: osm.Tags{{Key: "highway", Value: "residential"}},
			want: true,
		},
		{
			name: "busway",
			tags: osm.Tags{{Key: "highway", Value: "busway"}},
			want: true,
		},
		{
			name: "footway",
			tags: osm.Tags{{Key: "highway", Value: "footway"}},
			want: false,
		},
		{
			name: "cycleway",
			tags: osm.Tags{{Key: "highway", Value: "cycleway"}},
			want: false,
		},
		{
			name: "private access",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "access", Value: "private"},
			},
			want: false,
		},
		{
			name: "bus overrides access restriction",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "access", Value: "no"},
				{Key: "bus", Value: "yes"},
			},
			want: true,
		},
		{
			name: "psv designated",
			tags: osm.Tags{
				{Key: "highway", Value: "service"},
				{Key: "access", Value: "private"},
				{Key: "psv", Value: "designated"},
			},
			want: true,
		},
		{
			name: "motor_vehicle=no",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "motor_vehicle", Value: "no"},
			},
			want: false,
		},
		{
			name: "area=yes (pedestrian plaza)",
			tags: osm.Tags{
				{Key: "highway", Value: "service"},
				{Key: "area", Value: "yes"},
			},
			want: false,
		},
		{
			name: "no highway tag",
			tags: osm.Tags{{Key: "name", Value: "Some Street"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBusAccessible(tt.tags); got != tt.want {
				t.Errorf("isBusAccessible(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestDirectionFlags(t *testing.T) {
	tests := []struct {
		name    string
		tags    osm.Tags
		wantFwd bool
		wantBwd bool
	}{
		{
			name:    "default bidirectional",
			tags:    osm.Tags{{Key: "highway", Value: "residential"}},
			wantFwd: true,
			wantBwd: true,
		},
		{
			name:    "motorway implied oneway",
			tags:    osm.Tags{{Key: "highway", Value: "motorway"}},
			wantFwd: true,
			wantBwd: false,
		},
		{
			name: "roundabout implied oneway",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "junction", Value: "roundabout"},
			},
			wantFwd: true,
			wantBwd: false,
		},
		{
			name: "explicit oneway",
			tags: osm.Tags{
				{Key: "highway", Value: "primary"},
				{Key: "oneway", Value: "yes"},
			},
			wantFwd: true,
			wantBwd: false,
		},
		{
			name: "reverse oneway",
			tags: osm.Tags{
				{Key: "highway", Value: "primary"},
				{Key: "oneway", Value: "-1"},
			},
			wantFwd: false,
			wantBwd: true,
		},
		{
			name: "reversible skipped",
			tags: osm.Tags{
				{Key: "highway", Value: "primary"},
				{Key: "oneway", Value: "reversible"},
			},
			wantFwd: false,
			wantBwd: false,
		},
		{
			name: "contraflow bus lane reopens reverse",
			tags: osm.Tags{
				{Key: "highway", Value: "secondary"},
				{Key: "oneway", Value: "yes"},
				{Key: "oneway:bus", Value: "no"},
			},
			wantFwd: true,
			wantBwd: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd, bwd := directionFlags(tt.tags)
			if fwd != tt.wantFwd || bwd != tt.wantBwd {
				t.Errorf("directionFlags(%v) = (%v, %v), want (%v, %v)",
					tt.tags, fwd, bwd, tt.wantFwd, tt.wantBwd)
			}
		})
	}
}

func TestBBoxContains(t *testing.T) {
	b := BBox{MinLat: 30.0, MaxLat: 30.5, MinLon: -98.0, MaxLon: -97.5}
	if !b.Contains(30.27, -97.74) {
		t.Error("point inside the box reported outside")
	}
	if b.Contains(31.0, -97.74) {
		t.Error("point north of the box reported inside")
	}
	if (BBox{}).IsZero() != true {
		t.Error("zero bbox not reported as zero")
	}
	if b.IsZero() {
		t.Error("non-zero bbox reported as zero")
	}
}
