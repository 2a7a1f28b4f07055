package service

import (
	"context"
	"fmt"

	"charging-service/internal/util"

	"go.uber.org/zap"
)

// StationDrift describes a station whose availability disagrees with the
// ledger. Drift is available - (total - pending).
type StationDrift struct {
	StationID      string
	TotalPorts     int
	AvailablePorts int
	Pending        int
	Drift          int
}

// Reconciler checks available_ports == total_ports - pending for every
// station and exports the result as gauges.
type Reconciler struct {
	stations StationRegistry
	ledger   ReservationLedger
	logger   *zap.Logger
}

func NewReconciler(stations StationRegistry, ledger ReservationLedger) *Reconciler {
	return &Reconciler{
		stations: stations,
		ledger:   ledger,
		logger:   util.Named("reconciler"),
	}
}

// Check returns the stations whose counters drifted. Availability and the
// pending count are sampled separately, so drift seen under load may be
// transient.
func (r *Reconciler) Check(ctx context.Context) ([]StationDrift, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Check")
	defer span.End()

	stations, err := r.stations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}

	var drifted []StationDrift
	for _, st := range stations {
		pending, err := r.ledger.CountPending(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count pending reservations for %s: %w", st.ID, err)
		}

		drift := st.AvailablePorts - (st.TotalPorts - pending)
		util.StationAvailablePorts.WithLabelValues(st.ID).Set(float64(st.AvailablePorts))
		util.StationPortDrift.WithLabelValues(st.ID).Set(float64(drift))

		if drift == 0 {
			continue
		}

		r.logger.Warn("Station availability drift",
			zap.String("station_id", st.ID),
			zap.Int("total_ports", st.TotalPorts),
			zap.Int("available_ports", st.AvailablePorts),
			zap.Int("pending", pending),
			zap.Int("drift", drift))

		drifted = append(drifted, StationDrift{
			StationID:      st.ID,
			TotalPorts:     st.TotalPorts,
			AvailablePorts: st.AvailablePorts,
			Pending:        pending,
			Drift:          drift,
		})
	}

	return drifted, nil
}
