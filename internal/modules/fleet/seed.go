// README: Demo fleet of 25 units around Kurnool used by the seed command and the memory backend.
package fleet

import (
	"context"
	"fmt"

	"ridedispatch/internal/types"
)

var demoFleet = []struct {
	driver   string
	class    Class
	lat, lng float64
}{
	{"Driver A", ClassMini, 15.8281, 78.0373},
	{"Driver B", ClassSedan, 15.8350, 78.0420},
	{"Driver C", ClassSUV, 15.8200, 78.0300},
	{"Driver D", ClassSedan, 15.8400, 78.0500},
	{"Driver E", ClassMini, 15.8150, 78.0250},
	{"Driver F", ClassSUV, 15.8320, 78.0450},
	{"Driver G", ClassSedan, 15.8250, 78.0400},
	{"Driver H", ClassMini, 15.8300, 78.0350},
	{"Driver I", ClassSedan, 15.8380, 78.0380},
	{"Driver J", ClassSUV, 15.8220, 78.0320},
	{"Driver K", ClassMini, 15.8280, 78.0400},
	{"Driver L", ClassSedan, 15.8330, 78.0430},
	{"Driver M", ClassSUV, 15.8260, 78.0340},
	{"Driver N", ClassMini, 15.8370, 78.0410},
	{"Driver O", ClassSedan, 15.8240, 78.0360},
	{"Driver P", ClassSUV, 15.8310, 78.0440},
	{"Driver Q", ClassMini, 15.8190, 78.0280},
	{"Driver R", ClassSedan, 15.8360, 78.0390},
	{"Driver S", ClassSUV, 15.8230, 78.0330},
	{"Driver T", ClassMini, 15.8290, 78.0420},
	{"Driver U", ClassSedan, 15.8340, 78.0370},
	{"Driver V", ClassSUV, 15.8210, 78.0310},
	{"Driver W", ClassMini, 15.8270, 78.0380},
	{"Driver X", ClassSedan, 15.8390, 78.0460},
	{"Driver Y", ClassSUV, 15.8170, 78.0260},
}

// DemoUnits returns fresh available units taxi_001..taxi_025.
func DemoUnits() []Unit {
	out := make([]Unit, 0, len(demoFleet))
	for i, d := range demoFleet {
		p := types.Point{Lat: d.lat, Lng: d.lng}
		out = append(out, Unit{
			ID:         types.ID(fmt.Sprintf("taxi_%03d", i+1)),
			DriverName: d.driver,
			Class:      d.class,
			Location:   &p,
			Status:     StatusAvailable,
		})
	}
	return out
}

// Seed upserts the demo fleet into dir.
func Seed(ctx context.Context, dir Directory) (int, error) {
	units := DemoUnits()
	for _, u := range units {
		if err := dir.Upsert(ctx, u); err != nil {
			return 0, err
		}
	}
	return len(units), nil
}
