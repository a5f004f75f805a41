package stratum_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/stratum"
	"github.com/hupe1980/stratum/blobstore"
	"github.com/hupe1980/stratum/producer"
	"github.com/hupe1980/stratum/record"
	"github.com/hupe1980/stratum/schema"
)

func Example() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "stratum-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	store := blobstore.NewLocalStore(dir)

	movie := schema.NewObjectSchema("Movie",
		schema.NewField("id", schema.FieldInt),
		schema.NewField("title", schema.FieldString),
	).WithPrimaryKey("id")

	var next int64
	p := stratum.NewProducer(store, stratum.WithProducerOptions(
		producer.WithVersionMinter(producer.VersionMinterFunc(func() int64 { next++; return next })),
		producer.WithValidator(producer.NewDuplicateDataValidator("Movie")),
	))
	if err := p.Initialize(movie); err != nil {
		log.Fatal(err)
	}

	cycle := func(titles ...string) {
		v, err := p.RunCycle(ctx, func(ws *producer.WriteState) error {
			for i, title := range titles {
				rec := record.NewObject(movie).SetInt("id", int32(i)).SetString("title", title)
				if _, err := ws.Add("Movie", rec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("producer at version", v)
	}

	c := stratum.NewConsumer(store)
	cycle("Alien", "Heat")
	if err := c.Refresh(ctx); err != nil {
		log.Fatal(err)
	}

	cycle("Alien", "Heat", "Ran")
	if err := c.Refresh(ctx); err != nil {
		log.Fatal(err)
	}

	ts, _ := c.StateEngine().TypeState("Movie")
	fmt.Println("consumer at version", c.CurrentVersion(), "with", ts.Cardinality(), "movies")

	// Output:
	// producer at version 1
	// producer at version 2
	// consumer at version 2 with 3 movies
}
