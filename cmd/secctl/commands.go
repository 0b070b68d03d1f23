package main

import (
	"context"
	"io"
	"time"

	"security-gateway/internal/config"
	"security-gateway/internal/wiring"
	jqdomain "security-gateway/jobqueue/domain"
	jqinfra "security-gateway/jobqueue/infra"
	"security-gateway/middleware/ratelimit/application"
	rlinfra "security-gateway/middleware/ratelimit/infra"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli"
)

type connectFunc func(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error)

func newApp(out io.Writer, connect connectFunc) *cli.App {
	app := cli.NewApp()
	app.Name = "secctl"
	app.Version = Version
	app.Usage = "administrative commands for the rate limiter and the secure job queue"
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "redis-addr", Value: "localhost:6379", EnvVar: "REDIS_ADDR"},
		cli.StringFlag{Name: "redis-password", EnvVar: "REDIS_PASSWORD"},
		cli.IntFlag{Name: "redis-db", EnvVar: "REDIS_DB"},
		cli.StringFlag{Name: "classes", Usage: "limit class registry `FILE`", EnvVar: "RATE_LIMIT_CLASSES_FILE"},
		cli.StringFlag{Name: "stats-prefix", Value: "ratelimit:stats", EnvVar: "RATE_STATS_PREFIX"},
		cli.StringFlag{Name: "job-secret", EnvVar: "JOB_SECRET"},
	}

	cmd := &commands{out: out, connect: connect}
	classFlag := cli.StringFlag{Name: "class, c", Value: "default", Usage: "limit class name"}
	app.Commands = []cli.Command{
		{
			Name:      "reset",
			Usage:     "clear counter and block for an identifier",
			ArgsUsage: "IDENTIFIER",
			Flags:     []cli.Flag{classFlag},
			Action:    cmd.reset,
		},
		{
			Name:      "stats",
			Usage:     "show current usage for an identifier (read-only)",
			ArgsUsage: "IDENTIFIER",
			Flags:     []cli.Flag{classFlag},
			Action:    cmd.stats,
		},
		{
			Name:   "decision-stats",
			Usage:  "show accumulated decision counters (all classes when --class is empty)",
			Flags:  []cli.Flag{cli.StringFlag{Name: "class, c"}},
			Action: cmd.decisionStats,
		},
		{
			Name:      "job-status",
			Usage:     "show a job record",
			ArgsUsage: "JOB_ID",
			Action:    cmd.jobStatus,
		},
		{
			Name:   "cleanup-jobs",
			Usage:  "delete job records whose expiresAt has passed",
			Action: cmd.cleanupJobs,
		},
		{
			Name:  "recover-jobs",
			Usage: "requeue jobs stuck in processing",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "type, t", Usage: "job type"},
				cli.DurationFlag{Name: "visibility", Value: 5 * time.Minute},
			},
			Action: cmd.recoverJobs,
		},
	}
	return app
}

type commands struct {
	out     io.Writer
	connect connectFunc
}

func (c *commands) client(ctx *cli.Context) (*redis.Client, error) {
	return c.connect(context.Background(), config.RedisConfig{
		Addr:     ctx.GlobalString("redis-addr"),
		Password: ctx.GlobalString("redis-password"),
		DB:       ctx.GlobalInt("redis-db"),
	})
}

func (c *commands) limiter(ctx *cli.Context, rdb *redis.Client) (application.Service, error) {
	reg, err := wiring.Registry(config.RateLimitConfig{ClassesFile: ctx.GlobalString("classes")})
	if err != nil {
		return application.Service{}, err
	}
	return application.Service{Limiter: rlinfra.NewRedisLimiter(rdb), Registry: reg}, nil
}

func (c *commands) queue(ctx *cli.Context, rdb *redis.Client) (*jqinfra.RedisQueue, error) {
	q, _, err := wiring.Queue(rdb, config.JobsConfig{Secret: ctx.GlobalString("job-secret")}, nil, nil)
	return q, err
}

func (c *commands) print(v any) error {
	enc := jsoniter.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func identifier(ctx *cli.Context) (string, error) {
	if ctx.NArg() != 1 {
		return "", errors.New("expected exactly one IDENTIFIER argument")
	}
	return ctx.Args().First(), nil
}

func (c *commands) reset(ctx *cli.Context) error {
	id, err := identifier(ctx)
	if err != nil {
		return err
	}
	rdb, err := c.client(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()
	svc, err := c.limiter(ctx, rdb)
	if err != nil {
		return err
	}
	if err := svc.Reset(context.Background(), id, ctx.String("class")); err != nil {
		return err
	}
	return c.print(map[string]string{"reset": id, "class": svc.Class(ctx.String("class")).Name})
}

type usageView struct {
	Class        string     `json:"class"`
	Identifier   string     `json:"identifier"`
	Count        int        `json:"count"`
	Limit        int        `json:"limit"`
	Remaining    int        `json:"remaining"`
	ResetAt      *time.Time `json:"resetAt,omitempty"`
	Blocked      bool       `json:"blocked"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`
}

func (c *commands) stats(ctx *cli.Context) error {
	id, err := identifier(ctx)
	if err != nil {
		return err
	}
	rdb, err := c.client(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()
	svc, err := c.limiter(ctx, rdb)
	if err != nil {
		return err
	}
	u, err := svc.Usage(context.Background(), id, ctx.String("class"))
	if err != nil {
		return err
	}
	v := usageView{
		Class:      u.Class,
		Identifier: u.Identifier,
		Count:      u.Count,
		Limit:      u.Limit,
		Remaining:  u.Remaining,
		Blocked:    u.Blocked(),
	}
	if !u.ResetAt.IsZero() {
		v.ResetAt = &u.ResetAt
	}
	if u.Blocked() {
		v.BlockedUntil = &u.BlockedUntil
	}
	return c.print(v)
}

func (c *commands) decisionStats(ctx *cli.Context) error {
	rdb, err := c.client(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()
	store := rlinfra.NewRedisStatsStore(rdb, rlinfra.WithStatsPrefix(ctx.GlobalString("stats-prefix")))
	counters, err := store.ClassCounters(context.Background(), ctx.String("class"))
	if err != nil {
		return err
	}
	return c.print(counters)
}

func (c *commands) jobStatus(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one JOB_ID argument")
	}
	rdb, err := c.client(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()
	q, err := c.queue(ctx, rdb)
	if err != nil {
		return err
	}
	job, err := q.GetJobStatus(context.Background(), ctx.Args().First())
	if err != nil {
		return err
	}
	if job == nil {
		return errors.Errorf("job %s not found", ctx.Args().First())
	}
	// o token não sai no terminal
	job.JobToken = ""
	delete(job.Payload, jqdomain.PayloadJobToken)
	return c.print(job)
}

func (c *commands) cleanupJobs(ctx *cli.Context) error {
	rdb, err := c.client(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()
	q, err := c.queue(ctx, rdb)
	if err != nil {
		return err
	}
	n, err := q.CleanupExpiredJobs(context.Background())
	if err != nil {
		return err
	}
	return c.print(map[string]int{"removed": n})
}

func (c *commands) recoverJobs(ctx *cli.Context) error {
	jobType := ctx.String("type")
	if jobType == "" {
		return errors.New("--type is required")
	}
	rdb, err := c.client(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()
	q, err := c.queue(ctx, rdb)
	if err != nil {
		return err
	}
	n, err := q.RecoverStuckJobs(context.Background(), jobType, ctx.Duration("visibility"))
	if err != nil {
		return err
	}
	return c.print(map[string]int{"recovered": n})
}
