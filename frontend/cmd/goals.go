package cmd

import (
	"strings"

	ishell "github.com/abiosoft/ishell"
	"github.com/srkaul/goalmaster/backend/models"
	"github.com/srkaul/goalmaster/backend/progress"
	"github.com/srkaul/goalmaster/frontend/client"
	"github.com/srkaul/goalmaster/lib/utils"
)

// goalLabel renders a goal as a single display line. The category snapshot
// on the goal survives category deletion, so it is always printable.
func goalLabel(g models.Goal) string {
	label := g.Answers.What
	if label == "" {
		label = g.Answers.Why
	}
	if g.CategoryName != "" {
		label += " [" + g.CategoryName + "]"
	}
	return label
}

// stepLabel renders a step as a single display line with its checkbox state.
func stepLabel(s models.Step) string {
	box := "[ ]"
	if s.Completed {
		box = "[x]"
	}
	label := box + " " + s.Text
	if s.Urgency != "" {
		label += " (" + s.Urgency + ")"
	}
	if s.Deadline != "" {
		label += " due " + s.Deadline
	}
	return label
}

// pickGoal lists the user's active goals and lets them choose one. It
// reports (zero goal, false) when the list is empty or the user cancels.
func pickGoal(c *ishell.Context) (models.Goal, bool) {
	goalList, err := client.Goals(false)
	if err != nil {
		if handleSessionExpired(err) {
			return models.Goal{}, false
		}
		utils.PrintError(err.Error())
		return models.Goal{}, false
	}
	if len(goalList) == 0 {
		c.Println("You have no active goals. Create one with 'addgoal'.")
		return models.Goal{}, false
	}
	for i, g := range goalList {
		c.Printf("  %d. %s\n", i+1, goalLabel(g))
	}
	idx := readIndex(c, "Pick a goal: ", len(goalList))
	if idx < 0 {
		return models.Goal{}, false
	}
	return goalList[idx], true
}

// pickStep lists the steps of a goal and lets the user choose one.
func pickStep(c *ishell.Context, goalID string) (models.Step, bool) {
	steps, err := client.Steps(goalID, "")
	if err != nil {
		if handleSessionExpired(err) {
			return models.Step{}, false
		}
		utils.PrintError(err.Error())
		return models.Step{}, false
	}
	if len(steps) == 0 {
		c.Println("This goal has no steps yet. Add one with 'addstep'.")
		return models.Step{}, false
	}
	for i, s := range steps {
		c.Printf("  %d. %s\n", i+1, stepLabel(s))
	}
	idx := readIndex(c, "Pick a step: ", len(steps))
	if idx < 0 {
		return models.Step{}, false
	}
	return steps[idx], true
}

// readUrgency prompts until the user enters a recognized urgency or leaves
// it blank.
func readUrgency(c *ishell.Context) string {
	for {
		c.Print("Enter Urgency (High/Medium/Low, or leave blank): ")
		raw := strings.TrimSpace(c.ReadLine())
		switch strings.ToLower(raw) {
		case "":
			return ""
		case "high":
			return models.UrgencyHigh
		case "medium":
			return models.UrgencyMedium
		case "low":
			return models.UrgencyLow
		}
		c.Println("Urgency must be High, Medium or Low.")
	}
}

// readDeadline prompts until the user enters a valid RFC3339 deadline or
// leaves it blank.
func readDeadline(c *ishell.Context) string {
	for {
		c.Print("Enter Deadline (e.g. 2026-09-15T18:00:00Z, or leave blank): ")
		raw := strings.TrimSpace(c.ReadLine())
		if utils.ValidateDeadline(raw) {
			return raw
		}
		c.Println("Deadline must be an RFC3339 timestamp.")
	}
}

// categoryCommands returns the signed-in commands for managing categories.
func categoryCommands() []Command {
	return []Command{
		{
			Name: "categories",
			Desc: "List your goal categories",
			Func: func(c *ishell.Context) {
				categories, err := client.Categories()
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				if len(categories) == 0 {
					c.Println("You have no categories yet. Create one with 'addcategory'.")
					return
				}
				for i, cat := range categories {
					line := cat.Name
					if cat.ColorTag != "" {
						line += " (" + cat.ColorTag + ")"
					}
					c.Printf("  %d. %s\n", i+1, line)
				}
			},
		},
		{
			Name: "addcategory",
			Desc: "Create a new goal category",
			Func: func(c *ishell.Context) {
				var name string
				for {
					c.Print("Enter Category Name: ")
					name = strings.TrimSpace(c.ReadLine())
					if len(name) > 0 {
						break
					}
					c.Println("Category name cannot be empty.")
				}
				c.Print("Enter Color Tag (optional): ")
				colorTag := strings.TrimSpace(c.ReadLine())

				category, err := client.CreateCategory(name, colorTag)
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Printf("Category '%s' created.\n", category.Name)
			},
		},
		{
			Name: "deletecategory",
			Desc: "Delete a category (its goals keep their label)",
			Func: func(c *ishell.Context) {
				categories, err := client.Categories()
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				if len(categories) == 0 {
					c.Println("You have no categories to delete.")
					return
				}
				for i, cat := range categories {
					c.Printf("  %d. %s\n", i+1, cat.Name)
				}
				idx := readIndex(c, "Pick a category to delete: ", len(categories))
				if idx < 0 {
					return
				}
				if err := client.DeleteCategory(categories[idx].ID.Hex()); err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Printf("Category '%s' deleted. Goals that used it keep its name.\n", categories[idx].Name)
			},
		},
	}
}

// goalCommands returns the signed-in commands for managing goals and their
// steps.
func goalCommands() []Command {
	return []Command{
		{
			Name: "goals",
			Desc: "List your active goals",
			Func: func(c *ishell.Context) {
				goalList, err := client.Goals(false)
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				if len(goalList) == 0 {
					c.Println("You have no active goals. Create one with 'addgoal'.")
					return
				}
				for i, g := range goalList {
					c.Printf("  %d. %s\n", i+1, goalLabel(g))
				}
			},
		},
		{
			Name: "addgoal",
			Desc: "Create a new goal by answering a few prompts",
			Func: func(c *ishell.Context) {
				var answers models.Answers
				c.Println("Answer what you can; leave the rest blank. At least one answer is required.")
				for {
					c.Print("What do you want to achieve? ")
					answers.What = strings.TrimSpace(c.ReadLine())
					c.Print("Why does it matter to you? ")
					answers.Why = strings.TrimSpace(c.ReadLine())
					c.Print("When will you work on it? ")
					answers.When = strings.TrimSpace(c.ReadLine())
					c.Print("Where will you work on it? ")
					answers.Where = strings.TrimSpace(c.ReadLine())
					c.Print("Who can support you? ")
					answers.Who = strings.TrimSpace(c.ReadLine())
					if answers.HasAny() {
						break
					}
					c.Println("Please answer at least one of the questions.")
				}

				var categoryID string
				categories, err := client.Categories()
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				if len(categories) > 0 {
					for i, cat := range categories {
						c.Printf("  %d. %s\n", i+1, cat.Name)
					}
					idx := readIndex(c, "Pick a category (enter to skip): ", len(categories))
					if idx >= 0 {
						categoryID = categories[idx].ID.Hex()
					}
				}

				goal, err := client.CreateGoal(answers, categoryID)
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Printf("Goal created: %s\n", goalLabel(*goal))
			},
		},
		{
			Name: "templates",
			Desc: "Start a goal from a built-in template",
			Func: func(c *ishell.Context) {
				for i, t := range models.GoalTemplates {
					c.Printf("  %d. %s (%s)\n", i+1, t.Name, t.Category)
				}
				idx := readIndex(c, "Pick a template (enter to cancel): ", len(models.GoalTemplates))
				if idx < 0 {
					return
				}
				template := models.GoalTemplates[idx]

				categories, err := client.Categories()
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				var categoryID string
				for _, cat := range categories {
					if cat.Name == template.Category {
						categoryID = cat.ID.Hex()
						break
					}
				}
				if categoryID == "" {
					category, err := client.CreateCategory(template.Category, template.ColorTag)
					if err != nil {
						if handleSessionExpired(err) {
							return
						}
						utils.PrintError(err.Error())
						return
					}
					categoryID = category.ID.Hex()
				}

				goal, err := client.CreateGoal(template.Answers, categoryID)
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Printf("Goal created: %s\n", goalLabel(*goal))
			},
		},
		{
			Name: "deletegoal",
			Desc: "Delete a goal and all of its steps",
			Func: func(c *ishell.Context) {
				goal, ok := pickGoal(c)
				if !ok {
					return
				}
				for {
					c.Print("Delete this goal and all of its steps? (yes/no): ")
					response := strings.ToLower(c.ReadLine())
					if response == "no" {
						return
					}
					if response == "yes" {
						break
					}
					c.Println("Invalid response. Please type 'yes' or 'no'.")
				}
				if err := client.DeleteGoal(goal.ID.Hex()); err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Println("Goal deleted.")
			},
		},
		{
			Name: "steps",
			Desc: "List the steps of a goal",
			Func: func(c *ishell.Context) {
				goal, ok := pickGoal(c)
				if !ok {
					return
				}
				c.Print("Sort by (priority/deadline, enter for your order): ")
				sort := strings.TrimSpace(strings.ToLower(c.ReadLine()))
				if sort != "priority" && sort != "deadline" {
					sort = ""
				}
				steps, err := client.Steps(goal.ID.Hex(), sort)
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				if len(steps) == 0 {
					c.Println("This goal has no steps yet. Add one with 'addstep'.")
					return
				}
				for i, s := range steps {
					c.Printf("  %d. %s\n", i+1, stepLabel(s))
				}
			},
		},
		{
			Name: "addstep",
			Desc: "Add a step to a goal",
			Func: func(c *ishell.Context) {
				goal, ok := pickGoal(c)
				if !ok {
					return
				}
				var text string
				for {
					c.Print("Enter Step Text: ")
					text = strings.TrimSpace(c.ReadLine())
					if len(text) > 0 {
						break
					}
					c.Println("Step text cannot be empty.")
				}
				urgency := readUrgency(c)
				deadline := readDeadline(c)

				step, err := client.AddStep(goal.ID.Hex(), text, urgency, deadline)
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Printf("Step added: %s\n", stepLabel(*step))
			},
		},
		{
			Name: "deletestep",
			Desc: "Delete a step from a goal",
			Func: func(c *ishell.Context) {
				goal, ok := pickGoal(c)
				if !ok {
					return
				}
				step, ok := pickStep(c, goal.ID.Hex())
				if !ok {
					return
				}
				if err := client.DeleteStep(step.ID.Hex()); err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Println("Step deleted.")
			},
		},
		{
			Name: "toggle",
			Desc: "Mark a step complete or incomplete",
			Func: func(c *ishell.Context) {
				goal, ok := pickGoal(c)
				if !ok {
					return
				}
				step, ok := pickStep(c, goal.ID.Hex())
				if !ok {
					return
				}
				result, err := client.ToggleStep(step.ID.Hex())
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Println(stepLabel(result.Step))
				if result.XPAwarded > 0 {
					c.Printf("You earned %d XP!\n", result.XPAwarded)
				}
				if result.LevelUp != nil {
					c.Printf("Level up! You are now level %d. Your reward: %s\n", result.LevelUp.To, result.LevelUp.Reward)
				}
				if result.GoalComplete {
					archiveGoalPrompt(c, goal)
				}
			},
		},
		{
			Name: "move",
			Desc: "Move a step up or down within its goal",
			Func: func(c *ishell.Context) {
				goal, ok := pickGoal(c)
				if !ok {
					return
				}
				step, ok := pickStep(c, goal.ID.Hex())
				if !ok {
					return
				}
				var direction string
				for {
					c.Print("Move (up/down): ")
					direction = strings.ToLower(strings.TrimSpace(c.ReadLine()))
					if direction == "up" || direction == "down" {
						break
					}
					c.Println("Please type 'up' or 'down'.")
				}
				if err := client.MoveStep(step.ID.Hex(), direction); err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Println("Step moved.")
			},
		},
		{
			Name: "share",
			Desc: "Print a shareable progress line for a goal",
			Func: func(c *ishell.Context) {
				goal, ok := pickGoal(c)
				if !ok {
					return
				}
				steps, err := client.Steps(goal.ID.Hex(), "")
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Println(progress.ShareMessage(goal, steps))
			},
		},
		{
			Name: "archive",
			Desc: "Archive a fully completed goal",
			Func: func(c *ishell.Context) {
				goal, ok := pickGoal(c)
				if !ok {
					return
				}
				archiveGoalPrompt(c, goal)
			},
		},
	}
}

// archiveGoalPrompt asks for confirmation and archives the goal. It is also
// invoked right after a toggle completes a goal's last step.
func archiveGoalPrompt(c *ishell.Context, goal models.Goal) {
	for {
		c.Print("Archive this goal as completed? (yes/no): ")
		response := strings.ToLower(c.ReadLine())
		if response == "no" {
			return
		}
		if response == "yes" {
			break
		}
		c.Println("Invalid response. Please type 'yes' or 'no'.")
	}
	completed, err := client.ArchiveGoal(goal.ID.Hex())
	if err != nil {
		if handleSessionExpired(err) {
			return
		}
		utils.PrintError(err.Error())
		return
	}
	c.Printf("Goal archived with %d steps. Find it under 'completed'.\n", len(completed.Steps))
}
