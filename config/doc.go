// Package config loads the YAML configuration of stratum processes and
// turns it into a blob store and options for stratum.NewProducer and
// stratum.NewConsumer.
//
//	cfg, err := config.Load("stratum.yaml")
//	if err != nil {
//		return err
//	}
//	store, opts, err := cfg.Open(ctx)
//	if err != nil {
//		return err
//	}
//	c := stratum.NewConsumer(store, opts...)
package config
