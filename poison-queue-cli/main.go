package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"attendance/pubsub/poison"
)

func newQueue(c *cli.Context) (*poison.Queue, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: c.String("redis-addr"),
	})

	queue, err := poison.NewQueue(rdb, log.NewWatermill(logrus.NewEntry(logrus.StandardLogger())))
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}

	return queue, func() {
		_ = queue.Close()
		_ = rdb.Close()
	}, nil
}

func main() {
	log.Init(logrus.WarnLevel)

	app := &cli.App{
		Name:  "poison-queue-cli",
		Usage: "Manage commands that kept failing after all retries",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-addr",
				EnvVars: []string{"REDIS_ADDR"},
				Value:   "localhost:6379",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "preview",
				Usage: "preview messages",
				Action: func(c *cli.Context) error {
					queue, closeQueue, err := newQueue(c)
					if err != nil {
						return err
					}
					defer closeQueue()

					messages, err := queue.Preview(c.Context)
					if err != nil {
						return err
					}

					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tTOPIC\tHANDLER\tREASON")
					for _, m := range messages {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Topic, m.Handler, m.Reason)
					}
					return w.Flush()
				},
			},
			{
				Name:      "remove",
				ArgsUsage: "<message_id>",
				Usage:     "remove message",
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						return cli.Exit("expected exactly one message id", 2)
					}

					queue, closeQueue, err := newQueue(c)
					if err != nil {
						return err
					}
					defer closeQueue()

					return queue.Remove(c.Context, c.Args().First())
				},
			},
			{
				Name:      "requeue",
				ArgsUsage: "<message_id>",
				Usage:     "send message back to its handler",
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						return cli.Exit("expected exactly one message id", 2)
					}

					queue, closeQueue, err := newQueue(c)
					if err != nil {
						return err
					}
					defer closeQueue()

					return queue.Requeue(c.Context, c.Args().First())
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
