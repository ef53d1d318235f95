// Package influxdb mirrors reconciled readings and configuration pushes to
// InfluxDB v2 as time series.
//
// The mirror is optional and lossy: points are batched in memory and write
// failures are reported through a callback, never to the caller.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	client.WriteReading("t1", 21, "create", true, latency, time.Now())
package influxdb
