package cmd

import (
	"strconv"
	"strings"

	ishell "github.com/abiosoft/ishell"
	"github.com/srkaul/goalmaster/backend/models"
	"github.com/srkaul/goalmaster/frontend/client"
	"github.com/srkaul/goalmaster/lib/utils"
)

// pickCompleted lists the archived goals and lets the user choose one.
func pickCompleted(c *ishell.Context) (models.CompletedGoal, bool) {
	completed, err := client.CompletedGoals()
	if err != nil {
		if handleSessionExpired(err) {
			return models.CompletedGoal{}, false
		}
		utils.PrintError(err.Error())
		return models.CompletedGoal{}, false
	}
	if len(completed) == 0 {
		c.Println("You have no completed goals yet.")
		return models.CompletedGoal{}, false
	}
	for i, cg := range completed {
		label := cg.Answers.What
		if label == "" {
			label = cg.Answers.Why
		}
		if cg.CategoryName != "" {
			label += " [" + cg.CategoryName + "]"
		}
		c.Printf("  %d. %s (completed %s)\n", i+1, label, cg.CompletedAt.Format("2006-01-02"))
	}
	idx := readIndex(c, "Pick a completed goal: ", len(completed))
	if idx < 0 {
		return models.CompletedGoal{}, false
	}
	return completed[idx], true
}

// progressCommands returns the signed-in commands for progress, XP, rewards,
// the completed-goal archive and premium.
func progressCommands() []Command {
	return []Command{
		{
			Name: "progress",
			Desc: "Show your progress across categories and goals",
			Func: func(c *ishell.Context) {
				c.Print("Sort goals by (priority/deadline/category, enter for default): ")
				sort := strings.TrimSpace(strings.ToLower(c.ReadLine()))
				if sort != "priority" && sort != "deadline" && sort != "category" {
					sort = ""
				}
				c.Print("Filter by category name (enter for all): ")
				category := strings.TrimSpace(c.ReadLine())

				report, err := client.Progress(sort, category)
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				if len(report.Summaries) == 0 && len(report.Goals) == 0 {
					c.Println("Nothing to report yet. Create a goal with 'addgoal'.")
					return
				}
				if len(report.Summaries) > 0 {
					c.Println("By category:")
					for _, s := range report.Summaries {
						c.Printf("  %-20s %d goal(s), %d%% complete\n", s.Name, s.GoalCount, s.ProgressPercent)
					}
					c.Println()
				}
				for _, gp := range report.Goals {
					c.Printf("%s -- %d/%d steps (%.0f%%)\n", goalLabel(gp.Goal), gp.Completed, gp.Total, gp.Percent)
					for _, s := range gp.Steps {
						c.Println("    " + stepLabel(s))
					}
				}
			},
		},
		{
			Name: "xp",
			Desc: "Show your XP and level",
			Func: func(c *ishell.Context) {
				status, err := client.GetXPStatus()
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Printf("Level %d with %d XP (%d into this level, next level at %d).\n",
					status.Level, status.XP, status.XPIntoLevel, status.NextLevelAt)
				if status.FromCache {
					c.Println("Showing cached figures; the server could not be reached for fresh ones.")
				}
			},
		},
		{
			Name: "setreward",
			Desc: "Set your personal reward for reaching a level",
			Func: func(c *ishell.Context) {
				var level int
				for {
					c.Print("Enter Level: ")
					n, err := strconv.Atoi(strings.TrimSpace(c.ReadLine()))
					if err == nil && n >= 1 {
						level = n
						break
					}
					c.Println("Level must be a number greater than zero.")
				}
				var reward string
				for {
					c.Print("Enter Reward: ")
					reward = strings.TrimSpace(c.ReadLine())
					if len(reward) > 0 {
						break
					}
					c.Println("Reward cannot be empty.")
				}
				if err := client.SetReward(level, reward); err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Printf("Reward for level %d set to: %s\n", level, reward)
			},
		},
		{
			Name: "completed",
			Desc: "List your completed goals and their reflections",
			Func: func(c *ishell.Context) {
				completed, err := client.CompletedGoals()
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				if len(completed) == 0 {
					c.Println("You have no completed goals yet.")
					return
				}
				for i, cg := range completed {
					label := cg.Answers.What
					if label == "" {
						label = cg.Answers.Why
					}
					c.Printf("  %d. %s (completed %s, %d steps)\n", i+1, label, cg.CompletedAt.Format("2006-01-02"), len(cg.Steps))
					if cg.Reflection != "" {
						c.Println("     reflection: " + cg.Reflection)
					}
				}
			},
		},
		{
			Name: "reopen",
			Desc: "Bring a completed goal back to your active list",
			Func: func(c *ishell.Context) {
				cg, ok := pickCompleted(c)
				if !ok {
					return
				}
				goal, err := client.ReopenGoal(cg.ID.Hex())
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Printf("Goal reopened: %s\n", goalLabel(*goal))
			},
		},
		{
			Name: "reflect",
			Desc: "Write a reflection on a completed goal (premium)",
			Func: func(c *ishell.Context) {
				cg, ok := pickCompleted(c)
				if !ok {
					return
				}
				draft, err := client.ReflectionDraft(cg.ID.Hex())
				if err == nil && draft != "" {
					c.Println("You have a saved draft: " + draft)
				}
				var text string
				for {
					c.Print("Enter Reflection (enter to keep the draft): ")
					text = strings.TrimSpace(c.ReadLine())
					if text == "" && draft != "" {
						text = draft
					}
					if len(text) > 0 {
						break
					}
					c.Println("Reflection cannot be empty.")
				}
				for {
					c.Print("Save it now, or keep it as a draft? (save/draft): ")
					response := strings.ToLower(strings.TrimSpace(c.ReadLine()))
					if response == "draft" {
						if err := client.SaveReflectionDraft(cg.ID.Hex(), text); err != nil {
							if handleSessionExpired(err) {
								return
							}
							utils.PrintError(err.Error())
							return
						}
						c.Println("Draft saved. Come back to it with 'reflect'.")
						return
					}
					if response == "save" {
						break
					}
					c.Println("Invalid response. Please type 'save' or 'draft'.")
				}
				if err := client.SaveReflection(cg.ID.Hex(), text); err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Println("Reflection saved.")
			},
		},
		{
			Name: "premium",
			Desc: "Show, buy or restore the premium unlock",
			Func: func(c *ishell.Context) {
				isPremium, err := client.PremiumStatus()
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				if isPremium {
					c.Println("You have the premium unlock. Enjoy unlimited goals, categories and steps.")
					return
				}
				c.Println("You are on the free tier.")
				for {
					c.Print("Would you like to buy or restore the unlock? (buy/restore/no): ")
					response := strings.ToLower(strings.TrimSpace(c.ReadLine()))
					if response == "no" || response == "" {
						return
					}
					if response == "buy" {
						if err := client.BuyPremium(); err != nil {
							utils.PrintError(err.Error())
							return
						}
						c.Println("Purchase complete. Premium is now unlocked.")
						return
					}
					if response == "restore" {
						restored, err := client.RestorePremium()
						if err != nil {
							utils.PrintError(err.Error())
							return
						}
						if restored {
							c.Println("Purchase restored. Premium is now unlocked.")
						} else {
							c.Println("No previous purchase was found for this account.")
						}
						return
					}
					c.Println("Invalid response. Please type 'buy', 'restore' or 'no'.")
				}
			},
		},
	}
}
