package indicator

import "chartsync/internal/model"

// RSI computes the Relative Strength Index using Wilder's smoothing.
//
// The initial average gain/loss is the simple mean of the first period
// deltas; subsequent averages follow avg = (avg*(period-1)+current)/period.
// When the average loss is exactly zero, RSI is defined as 100.
//
// Returns an empty series unless len(candles) > period; the output
// length is exactly len(candles)-period.
func RSI(candles []model.Candle, period int) []Point {
	if period <= 0 || len(candles) <= period {
		return nil
	}

	out := make([]Point, 0, len(candles)-period)

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out = append(out, Point{Time: candles[period].Time, Value: rsiValue(avgGain, avgLoss)})

	p := float64(period)
	for i := period + 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, Point{Time: candles[i].Time, Value: rsiValue(avgGain, avgLoss)})
	}

	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
