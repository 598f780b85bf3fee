package stage

// Pass independent stages. Their keys are shared by every pass of a unit.
const (
	Fetch   = "fetch"
	Extract = "extract"
)

// Configure names the configure stage of a pass: configure[.pass].
func Configure(pass string) string {
	return qualify("configure", pass)
}

// Make names a build stage: make[.target][.pass]. An empty target is the default goal.
func Make(target, pass string) string {
	name := "make"
	if target != "" {
		name += "." + target
	}
	return qualify(name, pass)
}

// Install names the install stage: make.install[.pass], whatever the actual install goal is.
func Install(pass string) string {
	return qualify("make.install", pass)
}

func qualify(name, pass string) string {
	if pass == "" {
		return name
	}
	return name + "." + pass
}
