package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/engine"
	"github.com/conorfennell/knolrep/internal/storage"
)

var errUsage = errors.New("bad usage")

var pastTense = map[string]string{
	"suspend": "suspended",
	"resume":  "resumed",
}

type commandOptions struct {
	deferred  bool
	folder    string
	requestID string
	limit     int
}

type cli struct {
	db     *storage.DB
	engine *engine.Engine
	out    io.Writer
	opts   commandOptions
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "card":
		if len(rest) != 3 || rest[0] != "add" {
			return fmt.Errorf("%w: card add <card> <folder>", errUsage)
		}
		if err := c.db.PutCard(ctx, domain.CardRef{ID: rest[1], FolderID: rest[2]}); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Card %s added to folder %s.\n", rest[1], rest[2])
		return nil

	case "enroll":
		if len(rest) != 2 {
			return fmt.Errorf("%w: enroll <user> <card>", errUsage)
		}
		folder := c.opts.folder
		if folder == "" {
			if card, err := c.db.GetCard(ctx, rest[1]); err == nil {
				folder = card.FolderID
			}
		}
		st, err := c.engine.Enroll(ctx, engine.EnrollInput{
			UserID:   rest[0],
			CardID:   rest[1],
			FolderID: folder,
			Deferred: c.opts.deferred,
		})
		if err != nil {
			return err
		}
		c.printState(st)
		return nil

	case "grade":
		if len(rest) != 3 {
			return fmt.Errorf("%w: grade <user> <card> <0-5>", errUsage)
		}
		grade, err := strconv.Atoi(rest[2])
		if err != nil {
			return fmt.Errorf("%w: invalid grade %q", errUsage, rest[2])
		}
		res, err := c.engine.Grade(ctx, engine.GradeInput{
			UserID:    rest[0],
			CardID:    rest[1],
			Grade:     grade,
			RequestID: c.opts.requestID,
		})
		if err != nil {
			return err
		}
		if res.Replayed {
			fmt.Fprintln(c.out, "Request already applied.")
		} else {
			fmt.Fprintf(c.out, "Earned %d XP.\n", res.XP)
		}
		c.printState(res.State)
		return nil

	case "queue":
		if len(rest) != 1 {
			return fmt.Errorf("%w: queue <user>", errUsage)
		}
		due, err := c.engine.DailyQueue(ctx, engine.QueueInput{
			UserID:   rest[0],
			FolderID: c.opts.folder,
			Limit:    c.opts.limit,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Found %d due cards.\n", len(due))
		for _, st := range due {
			c.printState(st)
		}
		return nil

	case "snooze":
		if len(rest) != 3 {
			return fmt.Errorf("%w: snooze <user> <card> <minutes>", errUsage)
		}
		minutes, err := strconv.Atoi(rest[2])
		if err != nil {
			return fmt.Errorf("%w: invalid minutes %q", errUsage, rest[2])
		}
		st, err := c.engine.Snooze(ctx, engine.SnoozeInput{UserID: rest[0], CardID: rest[1], Minutes: minutes})
		if err != nil {
			return err
		}
		c.printState(st)
		return nil

	case "suspend", "resume":
		if len(rest) != 2 {
			return fmt.Errorf("%w: %s <user> <card>", errUsage, cmd)
		}
		toggle := c.engine.Suspend
		if cmd == "resume" {
			toggle = c.engine.Resume
		}
		if err := toggle(ctx, rest[0], rest[1]); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Card %s %s.\n", rest[1], pastTense[cmd])
		return nil

	case "xp":
		if len(rest) != 1 {
			return fmt.Errorf("%w: xp <user>", errUsage)
		}
		total, err := c.engine.DailyXP(ctx, rest[0], time.Time{})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%d XP today.\n", total)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (c *cli) printState(st domain.ReviewState) {
	status := "active"
	if st.Suspended {
		status = "suspended"
	}
	fmt.Fprintf(c.out, "- %s folder=%s reps=%d ease=%.2f interval=%dd next=%s %s\n",
		st.CardID,
		st.FolderID,
		st.Repetitions,
		st.EaseFactor,
		st.IntervalDays,
		st.NextReviewAt.Format(time.RFC3339),
		status,
	)
}
