package providers

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/fileedit"
	"github.com/openfroyo/control/pkg/params"
	"github.com/openfroyo/control/pkg/transports"
)

const defaultSSHDConfig = "/etc/ssh/sshd_config"

// EditFile rewrites a remote file line by line. The file keeps its mode.
func (p *posix) EditFile(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	file, err := a.Params.GetString("path")
	if err != nil {
		return paramError(err)
	}
	backup, err := a.Params.GetBoolOr("backup", false)
	if err != nil {
		return paramError(err)
	}
	rules, err := editRules(a.Params)
	if err != nil {
		return err
	}
	if rules.Empty() {
		return invalidParams("editFile needs at least one of replaceLine, insertLine or commentLine")
	}

	contents, err := p.readText(ctx, sess, file)
	if err != nil {
		return err
	}
	updated, changed := fileedit.Apply(contents, rules)
	if !changed {
		log.Info().Str("path", file).Msg("File already up to date")
		return nil
	}

	return p.replaceFile(ctx, sess, file, updated, backup)
}

// replaceFile writes contents over an existing file, preserving its mode and
// optionally keeping a .bak copy.
func (p *posix) replaceFile(ctx context.Context, sess *transports.RemoteSession, file, contents string, backup bool) error {
	if backup {
		bak := file + ".bak"
		if _, err := p.runChecked(ctx, sess, "backing up "+file,
			"cp -p "+transports.ShellQuote(file)+" "+transports.ShellQuote(bak)); err != nil {
			return err
		}
	}

	mode, err := p.statMode(ctx, sess, file)
	if err != nil {
		return err
	}
	return p.writeText(ctx, sess, file, mode, contents)
}

func editRules(b params.Bag) (fileedit.Rules, error) {
	var rules fileedit.Rules

	if b.Has("replaceLine") {
		entries, err := b.GetMapList("replaceLine")
		if err != nil {
			return rules, paramError(err)
		}
		for _, e := range entries {
			match, matchType, err := ruleMatch(e)
			if err != nil {
				return rules, err
			}
			replace, err := e.GetText("replace")
			if err != nil {
				return rules, paramError(err)
			}
			rules.Replace = append(rules.Replace, fileedit.ReplaceRule{Match: match, Replace: replace, MatchType: matchType})
		}
	}

	if b.Has("insertLine") {
		entries, err := b.GetMapList("insertLine")
		if err != nil {
			return rules, paramError(err)
		}
		for _, e := range entries {
			match, matchType, err := ruleMatch(e)
			if err != nil {
				return rules, err
			}
			insert, err := e.GetText("insert")
			if err != nil {
				return rules, paramError(err)
			}
			pos, err := e.GetStringOr("position", "below")
			if err != nil {
				return rules, paramError(err)
			}
			position, err := fileedit.ParsePosition(pos)
			if err != nil {
				return rules, invalidParams("%v", err)
			}
			rules.Insert = append(rules.Insert, fileedit.InsertRule{Position: position, Match: match, Insert: insert, MatchType: matchType})
		}
	}

	if b.Has("commentLine") {
		entries, err := b.GetMapList("commentLine")
		if err != nil {
			return rules, paramError(err)
		}
		for _, e := range entries {
			match, matchType, err := ruleMatch(e)
			if err != nil {
				return rules, err
			}
			char, err := e.GetStringOr("commentChar", "#")
			if err != nil {
				return rules, paramError(err)
			}
			rules.Comment = append(rules.Comment, fileedit.CommentRule{Match: match, CommentChar: char, MatchType: matchType})
		}
	}

	return rules, nil
}

func ruleMatch(e params.Bag) (string, fileedit.MatchType, error) {
	match, err := e.GetText("match")
	if err != nil {
		return "", 0, paramError(err)
	}
	if match == "" {
		return "", 0, invalidParams("empty match string")
	}
	name, err := e.GetStringOr("matchType", "")
	if err != nil {
		return "", 0, paramError(err)
	}
	matchType, err := fileedit.ParseMatchType(name)
	if err != nil {
		return "", 0, invalidParams("%v", err)
	}
	return match, matchType, nil
}

// sshdSetting pairs a document parameter with its sshd_config key.
type sshdSetting struct {
	param string
	key   string
}

var sshdSettings = []sshdSetting{
	{"passwordAuthentication", "PasswordAuthentication"},
	{"permitEmptyPasswords", "PermitEmptyPasswords"},
	{"permitRootLogin", "PermitRootLogin"},
	{"port", "Port"},
	{"pubkeyAuthentication", "PubkeyAuthentication"},
}

// ConfigureSSH edits sshd_config and restarts the SSH service. Previous
// values stay in the file as comments.
func (p *posix) ConfigureSSH(ctx context.Context, sess *transports.RemoteSession, a actions.Action) error {
	configPath, err := a.Params.GetStringOr("configPath", defaultSSHDConfig)
	if err != nil {
		return paramError(err)
	}
	backup, err := a.Params.GetBoolOr("backup", false)
	if err != nil {
		return paramError(err)
	}
	restart, err := a.Params.GetBoolOr("restartService", true)
	if err != nil {
		return paramError(err)
	}

	values := make(map[string]string)
	for _, s := range sshdSettings {
		if !a.Params.Has(s.param) {
			continue
		}
		v, err := sshdValue(a.Params, s.param)
		if err != nil {
			return err
		}
		values[s.key] = v
	}
	if len(values) == 0 {
		return invalidParams("configureSSH needs at least one setting")
	}

	contents, err := p.readText(ctx, sess, configPath)
	if err != nil {
		return err
	}
	updated := contents
	for _, s := range sshdSettings {
		v, ok := values[s.key]
		if !ok {
			continue
		}
		if current, found := fileedit.GetSSHDValue(updated, s.key); found && current == v {
			continue
		}
		updated = fileedit.SetSSHDValue(updated, s.key, v)
	}

	if updated != contents {
		if err := p.replaceFile(ctx, sess, configPath, updated, backup); err != nil {
			return err
		}
	} else {
		log.Info().Str("path", configPath).Msg("sshd configuration already up to date")
	}

	if !restart {
		return nil
	}
	_, err = p.runChecked(ctx, sess, "restarting "+p.sshService,
		"systemctl restart "+transports.ShellQuote(p.sshService))
	return err
}

func sshdValue(b params.Bag, param string) (string, error) {
	switch param {
	case "port":
		text, err := b.GetText(param)
		if err != nil {
			return "", paramError(err)
		}
		port, err := strconv.Atoi(text)
		if err != nil || port < 1 || port > 65535 {
			return "", invalidParams("invalid port %q", text)
		}
		return strconv.Itoa(port), nil

	case "permitRootLogin":
		v, _ := b.Get(param)
		if s, ok := v.AsString(); ok {
			switch s {
			case "prohibit-password", "yes", "no":
				return s, nil
			}
			return "", invalidParams("permitRootLogin must be true, false or \"prohibit-password\", got %q", s)
		}
	}

	on, err := b.GetBool(param)
	if err != nil {
		return "", paramError(err)
	}
	return yesNo(on), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
